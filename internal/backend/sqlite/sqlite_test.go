package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/version"
)

func mustVersion(t *testing.T, s string) *version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

type scriptArtifact struct {
	body string
	from version.Req
	to   *version.Version
}

func (s *scriptArtifact) Compatible(v *version.Version) bool    { return s.from.Matches(v) }
func (s *scriptArtifact) Version() *version.Version             { return s.to }
func (s *scriptArtifact) Spec() (version.Req, *version.Version) { return s.from, s.to }
func (s *scriptArtifact) Scripts(c artifact.ScriptConsumer) (artifact.ContentId, error) {
	h := artifact.NewHash()
	h.Write([]byte(s.body))
	id := h.Sum()
	if err := c.Accept(s.body); err != nil {
		return artifact.ContentId{}, err
	}
	if err := c.Commit(id); err != nil {
		return artifact.ContentId{}, err
	}
	return id, nil
}

func TestInstallThenOpenReportsState(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	state, err := b.Install(ctx)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !version.IsEmpty(state.ProjectVersion) {
		t.Errorf("ProjectVersion = %s, want empty", state.ProjectVersion)
	}
	if state.SqiglVersion.String() != SqiglVersion {
		t.Errorf("SqiglVersion = %s, want %s", state.SqiglVersion, SqiglVersion)
	}

	state2, err := b.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !state2.ProjectVersion.Equal(state.ProjectVersion) {
		t.Errorf("Open after Install changed ProjectVersion: %s", state2.ProjectVersion)
	}
}

func TestOpenInstallsOnFirstUse(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	state, err := b.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if state.SqiglVersion.String() != SqiglVersion {
		t.Errorf("SqiglVersion = %s, want %s", state.SqiglVersion, SqiglVersion)
	}
}

func TestApplyAdvancesStateAndRecordsHistory(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := b.Open(ctx); err != nil {
		t.Fatal(err)
	}

	v1 := mustVersion(t, "0.1.0")
	a := &scriptArtifact{body: "create table widgets (id integer primary key);", from: version.FromEmpty(), to: v1}

	state, err := b.Apply(ctx, a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !state.ProjectVersion.Equal(v1) {
		t.Fatalf("ProjectVersion = %s, want 0.1.0", state.ProjectVersion)
	}

	var name string
	if err := b.db.QueryRowContext(ctx, "select name from sqlite_master where type='table' and name = 'widgets'").Scan(&name); err != nil {
		t.Fatalf("expected widgets table to exist: %v", err)
	}
}

func TestApplyRejectsIncompatibleArtifact(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := b.Open(ctx); err != nil {
		t.Fatal(err)
	}

	wrongFrom := version.FromMinor(mustVersion(t, "5.0.0"))
	a := &scriptArtifact{body: "create table t (id integer);", from: wrongFrom, to: mustVersion(t, "5.1.0")}

	if _, err := b.Apply(ctx, a); err == nil {
		t.Fatal("expected an incompatibility error")
	}
}

func TestApplyReleasesConnectionOnScriptFailure(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := b.Open(ctx); err != nil {
		t.Fatal(err)
	}

	bad := &scriptArtifact{body: "not valid sql;", from: version.FromEmpty(), to: mustVersion(t, "0.1.0")}
	if _, err := b.Apply(ctx, bad); err == nil {
		t.Fatal("expected a bad script to fail Apply")
	}

	// If Apply left the exclusive transaction open on the pinned
	// connection, this next Apply would hang forever waiting for a
	// connection that's never returned to the pool.
	good := &scriptArtifact{body: "create table widgets (id integer);", from: version.FromEmpty(), to: mustVersion(t, "0.1.0")}
	if _, err := b.Apply(ctx, good); err != nil {
		t.Fatalf("Apply after a failed script should still succeed, got: %v", err)
	}
}

func TestCheckReleasesConnectionOnScriptFailure(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	bad := &scriptArtifact{body: "not valid sql;", from: version.FromEmpty(), to: mustVersion(t, "0.1.0")}
	if err := b.Check(ctx, bad); err == nil {
		t.Fatal("expected a bad script to fail Check")
	}

	good := &scriptArtifact{body: "create table widgets (id integer);", from: version.FromEmpty(), to: mustVersion(t, "0.1.0")}
	if err := b.Check(ctx, good); err != nil {
		t.Fatalf("Check after a failed script should still succeed, got: %v", err)
	}
}

func TestCheckRollsBackChanges(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a := &scriptArtifact{body: "create table ephemeral (id integer);", from: version.FromEmpty(), to: mustVersion(t, "0.1.0")}
	if err := b.Check(ctx, a); err != nil {
		t.Fatalf("Check: %v", err)
	}

	var count int
	if err := b.db.QueryRowContext(ctx, "select count(*) from sqlite_master where type='table' and name='ephemeral'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected Check to roll back, but found %d matching tables", count)
	}
}

func TestGenerateMigrationDiffsTables(t *testing.T) {
	fromArtifact := &scriptArtifact{
		body: "create table keep (id integer); create table drop_me (id integer);",
		from: version.FromEmpty(),
		to:   mustVersion(t, "0.1.0"),
	}
	toArtifact := &scriptArtifact{
		body: "create table keep (id integer); create table add_me (id integer);",
		from: version.FromEmpty(),
		to:   mustVersion(t, "0.2.0"),
	}

	b, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	generated, err := b.GenerateMigration(context.Background(), fromArtifact, toArtifact)
	if err != nil {
		t.Fatalf("GenerateMigration: %v", err)
	}

	script, err := artifact.ToString(generated)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(script, "DROP TABLE drop_me") {
		t.Errorf("expected a DROP TABLE for drop_me, got:\n%s", script)
	}
	if !strings.Contains(script, "add_me") || strings.Contains(script, "DROP TABLE add_me") {
		t.Errorf("expected a CREATE TABLE for add_me, got:\n%s", script)
	}
	if strings.Contains(script, "keep") {
		t.Errorf("table present in both schemas should not appear in the delta, got:\n%s", script)
	}
}
