package build

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newProject(t *testing.T, title string) (manifest.ProjectInfo, string) {
	t.Helper()
	root := t.TempDir()
	m := manifest.NewProjectManifest(title, manifest.Database{Sqlite: &manifest.SqliteDatabase{}})
	if err := m.Write(root); err != nil {
		t.Fatal(err)
	}
	info, err := manifest.OpenProject(root)
	if err != nil {
		t.Fatal(err)
	}
	return info, root
}

func TestBuildProjectWithNoSourceDirIsEmpty(t *testing.T) {
	info, _ := newProject(t, "empty")
	artifact, err := BuildProject(info)
	if err != nil {
		t.Fatalf("BuildProject: %v", err)
	}
	if len(artifact.scripts) != 0 {
		t.Fatalf("expected no scripts, got %v", artifact.scripts)
	}
}

func TestBuildProjectOrdersScriptsByDependency(t *testing.T) {
	info, root := newProject(t, "ordered")
	src := filepath.Join(root, "src")

	writeFile(t, filepath.Join(src, "sqigl.toml"), "[[scripts]]\nscript = \"002_add_column.sql\"\ndependencies = [\"001_create_table.sql\"]\n")
	writeFile(t, filepath.Join(src, "001_create_table.sql"), "create table t();")
	writeFile(t, filepath.Join(src, "002_add_column.sql"), "alter table t add column x int;")

	artifact, err := BuildProject(info)
	if err != nil {
		t.Fatalf("BuildProject: %v", err)
	}
	if len(artifact.scripts) != 2 {
		t.Fatalf("expected 2 scripts, got %v", artifact.scripts)
	}
	if !strings.HasSuffix(artifact.scripts[0], "001_create_table.sql") {
		t.Fatalf("expected 001 first, got %v", artifact.scripts)
	}
	if !strings.HasSuffix(artifact.scripts[1], "002_add_column.sql") {
		t.Fatalf("expected 002 second, got %v", artifact.scripts)
	}
}

func TestBuildProjectDetectsCycle(t *testing.T) {
	info, root := newProject(t, "cyclic")
	src := filepath.Join(root, "src")

	writeFile(t, filepath.Join(src, "sqigl.toml"), `
[[scripts]]
script = "a.sql"
dependencies = ["b.sql"]

[[scripts]]
script = "b.sql"
dependencies = ["a.sql"]
`)
	writeFile(t, filepath.Join(src, "a.sql"), "select 1;")
	writeFile(t, filepath.Join(src, "b.sql"), "select 2;")

	if _, err := BuildProject(info); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestBuildProjectImplicitlyOrdersParentBeforeChild(t *testing.T) {
	info, root := newProject(t, "nested")
	src := filepath.Join(root, "src")

	writeFile(t, filepath.Join(src, "000_parent.sql"), "create schema app;")
	writeFile(t, filepath.Join(src, "child", "001_child.sql"), "create table app.t();")

	artifact, err := BuildProject(info)
	if err != nil {
		t.Fatalf("BuildProject: %v", err)
	}
	if len(artifact.scripts) != 2 {
		t.Fatalf("expected 2 scripts, got %v", artifact.scripts)
	}
	if !strings.HasSuffix(artifact.scripts[0], "000_parent.sql") {
		t.Fatalf("expected parent script first, got %v", artifact.scripts)
	}
	if !strings.Contains(artifact.scripts[1], "child") {
		t.Fatalf("expected child script second, got %v", artifact.scripts)
	}
}

func TestBuildArtifactHeaderNamesProjectAndVersion(t *testing.T) {
	info, root := newProject(t, "headered")
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "001.sql"), "select 1;")

	a, err := BuildProject(info)
	if err != nil {
		t.Fatal(err)
	}
	var sink strings.Builder
	if _, err := a.Scripts(&collectConsumer{&sink}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sink.String(), "headered") {
		t.Fatalf("header missing project title: %q", sink.String())
	}
}

type collectConsumer struct {
	b *strings.Builder
}

func (c *collectConsumer) Accept(script string) error {
	c.b.WriteString(script)
	return nil
}

func (c *collectConsumer) Commit(id artifact.ContentId) error { return nil }
