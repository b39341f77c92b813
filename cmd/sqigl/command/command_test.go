package command

import (
	"testing"

	"github.com/sqigl/sqigl/internal/actions"
	"github.com/sqigl/sqigl/internal/version"
)

func TestDatabaseFromKindPostgres(t *testing.T) {
	db, err := databaseFromKind("postgres")
	if err != nil {
		t.Fatal(err)
	}
	if db.Postgres == nil || db.Sqlite != nil {
		t.Fatalf("databaseFromKind(postgres) = %+v, want only Postgres set", db)
	}
}

func TestDatabaseFromKindSqlite(t *testing.T) {
	db, err := databaseFromKind("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if db.Sqlite == nil || db.Postgres != nil {
		t.Fatalf("databaseFromKind(sqlite) = %+v, want only Sqlite set", db)
	}
}

func TestDatabaseFromKindRejectsUnknown(t *testing.T) {
	if _, err := databaseFromKind("mysql"); err == nil {
		t.Fatal("expected an unknown database kind to be rejected")
	}
}

func TestParseReleaseLevel(t *testing.T) {
	cases := map[string]actions.ReleaseLevel{
		"patch": actions.ReleasePatch,
		"minor": actions.ReleaseMinor,
		"major": actions.ReleaseMajor,
	}
	for s, want := range cases {
		got, err := parseReleaseLevel(s)
		if err != nil {
			t.Fatalf("parseReleaseLevel(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("parseReleaseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseReleaseLevelRejectsUnknown(t *testing.T) {
	if _, err := parseReleaseLevel("epic"); err == nil {
		t.Fatal("expected an unknown release level to be rejected")
	}
}

func TestParseFromToDefaultsToCurrentVersion(t *testing.T) {
	current, err := version.Parse("1.2.0")
	if err != nil {
		t.Fatal(err)
	}
	from, to, err := parseFromTo("1.1.0", "", current)
	if err != nil {
		t.Fatal(err)
	}
	if from.String() != "1.1.0" {
		t.Errorf("from = %s, want 1.1.0", from)
	}
	if !to.Equal(current) {
		t.Errorf("to = %s, want %s", to, current)
	}
}

func TestParseFromToRejectsUnparseableFrom(t *testing.T) {
	current, err := version.Parse("1.2.0")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := parseFromTo("not-a-version", "", current); err == nil {
		t.Fatal("expected an unparseable from version to be rejected")
	}
}
