package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/manifest"
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

func (s *scriptArtifact) Compatible(v *version.Version) bool        { return s.from.Matches(v) }
func (s *scriptArtifact) Version() *version.Version                 { return s.to }
func (s *scriptArtifact) Spec() (version.Req, *version.Version)     { return s.from, s.to }
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

func newProjectWithArtifactsDir(t *testing.T) manifest.ProjectInfo {
	t.Helper()
	root := t.TempDir()
	m := manifest.NewProjectManifest("p", manifest.Database{Sqlite: &manifest.SqliteDatabase{}})
	if err := m.Write(root); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "artifacts"), 0o755); err != nil {
		t.Fatal(err)
	}
	info, err := manifest.OpenProject(root)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestSaveMigrationThenOpenSet(t *testing.T) {
	info := newProjectWithArtifactsDir(t)
	v1 := mustVersion(t, "0.1.0")

	a := &scriptArtifact{body: "create table t();", from: version.FromEmpty(), to: v1}
	path, err := SaveMigration("schema", a, info)
	if err != nil {
		t.Fatalf("SaveMigration: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected script file at %s: %v", path, err)
	}

	set, err := OpenSet(info)
	if err != nil {
		t.Fatalf("OpenSet: %v", err)
	}
	if set.IsEmpty() {
		t.Fatal("expected a non-empty migration set")
	}

	schema := set.GetSchema(v1)
	if schema == nil {
		t.Fatal("expected GetSchema to find the saved migration")
	}
	if !schema.Version().Equal(v1) {
		t.Errorf("schema version = %s, want 0.1.0", schema.Version())
	}
}

func TestLatestReleasedVersionSkipsPrerelease(t *testing.T) {
	info := newProjectWithArtifactsDir(t)
	v1 := mustVersion(t, "0.1.0")
	v2pre := mustVersion(t, "0.2.0-rc1")

	if _, err := SaveMigration("a", &scriptArtifact{body: "x;", from: version.FromEmpty(), to: v1}, info); err != nil {
		t.Fatal(err)
	}
	if _, err := SaveMigration("b", &scriptArtifact{body: "y;", from: version.FromMinor(v1), to: v2pre}, info); err != nil {
		t.Fatal(err)
	}

	set, err := OpenSet(info)
	if err != nil {
		t.Fatal(err)
	}
	latest := set.LatestReleasedVersion()
	if latest == nil || !latest.Equal(v1) {
		t.Fatalf("LatestReleasedVersion = %v, want 0.1.0", latest)
	}
}

func TestGetReturnsNilWhenNoMatch(t *testing.T) {
	info := newProjectWithArtifactsDir(t)
	set, err := OpenSet(info)
	if err != nil {
		t.Fatal(err)
	}
	if set.Get(version.Empty(), mustVersion(t, "9.9.9")) != nil {
		t.Fatal("expected nil for a version with no saved migration")
	}
}
