package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/sqigl/sqigl/internal/fsutil"
	"github.com/sqigl/sqigl/internal/sqiglerr"
	"github.com/sqigl/sqigl/internal/version"
)

// projectManifestKey is the top-level TOML table this manifest kind is
// recognized by.
const projectManifestKey = "project"

// Project is a project's declared version and human title.
type Project struct {
	Version *version.Version
	Title   string
}

// Database is the backend a project targets. Exactly one of Postgres or
// Sqlite is set.
type Database struct {
	Postgres *PostgresDatabase
	Sqlite   *SqliteDatabase
}

// Kind reports which backend this database configuration targets.
func (d Database) Kind() string {
	switch {
	case d.Postgres != nil:
		return "postgres"
	case d.Sqlite != nil:
		return "sqlite"
	default:
		return ""
	}
}

// PostgresDatabase holds the optional connection parameters a project may
// pin in sqigl.toml; the matching libpq environment variables, when set,
// take precedence over them, and without a password credentials come from
// a .pgpass file at connection time.
type PostgresDatabase struct {
	Hostname    string `toml:"hostname,omitempty"`
	Port        uint16 `toml:"port,omitempty"`
	Username    string `toml:"username,omitempty"`
	Database    string `toml:"database,omitempty"`
	Certificate string `toml:"certificate,omitempty"`
}

// SqliteDatabase holds the database file path, relative to the project
// root unless absolute.
type SqliteDatabase struct {
	Path string `toml:"path,omitempty"`
}

// ProjectManifest is the parsed content of a project's sqigl.toml.
type ProjectManifest struct {
	Project  Project
	Database Database
}

// NewProjectManifest builds the manifest a freshly created project starts
// with: version 0.1.0 and the given title and database configuration.
func NewProjectManifest(title string, db Database) ProjectManifest {
	return ProjectManifest{
		Project:  Project{Version: version.InitialProject(), Title: title},
		Database: db,
	}
}

// ProjectInfo is a project manifest together with the canonical directory
// it was found in.
type ProjectInfo struct {
	Project  Project
	Database Database
	Root     string
}

// ProjectManifestPath returns the path to this project's sqigl.toml.
func (p ProjectInfo) ProjectManifestPath() string {
	return filepath.Join(p.Root, ManifestFilename)
}

// SourceDir returns this project's source-module tree root.
func (p ProjectInfo) SourceDir() string {
	return filepath.Join(p.Root, SourceDirectory)
}

// ArtifactsDir returns this project's saved-migrations directory.
func (p ProjectInfo) ArtifactsDir() string {
	return filepath.Join(p.Root, ArtifactsDirectory)
}

// projectManifestTOML is the literal on-disk shape: Version is a string,
// since semver.Version does not itself know how to marshal to or from
// TOML scalars.
type projectManifestTOML struct {
	Project struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"project"`
	Database databaseTOML `toml:"database"`
}

type databaseTOML struct {
	Db       string            `toml:"db"`
	Postgres *PostgresDatabase `toml:"postgres,omitempty"`
	Sqlite   *SqliteDatabase   `toml:"sqlite,omitempty"`
}

func (raw projectManifestTOML) toProjectManifest() (ProjectManifest, error) {
	v, err := version.Parse(raw.Project.Version)
	if err != nil {
		return ProjectManifest{}, fmt.Errorf("project.version %q: %w", raw.Project.Version, err)
	}
	var db Database
	switch raw.Database.Db {
	case "postgres":
		pg := raw.Database.Postgres
		if pg == nil {
			pg = &PostgresDatabase{}
		}
		db.Postgres = pg
	case "sqlite":
		sl := raw.Database.Sqlite
		if sl == nil {
			sl = &SqliteDatabase{}
		}
		db.Sqlite = sl
	default:
		return ProjectManifest{}, fmt.Errorf("database.db %q: must be \"postgres\" or \"sqlite\"", raw.Database.Db)
	}
	return ProjectManifest{
		Project:  Project{Version: v, Title: raw.Project.Title},
		Database: db,
	}, nil
}

func (m ProjectManifest) toTOML() projectManifestTOML {
	var raw projectManifestTOML
	raw.Project.Version = m.Project.Version.String()
	raw.Project.Title = m.Project.Title
	raw.Database.Db = m.Database.Kind()
	raw.Database.Postgres = m.Database.Postgres
	raw.Database.Sqlite = m.Database.Sqlite
	return raw
}

// Write serializes m as sqigl.toml into dir.
func (m ProjectManifest) Write(dir string) error {
	content, err := toml.Marshal(m.toTOML())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFilename), content, 0o644)
}

// OpenProject walks directory and each of its ancestors looking for a
// sqigl.toml containing a [project] table. directory must be an
// absolute, canonical path.
func OpenProject(directory string) (ProjectInfo, error) {
	for d := directory; ; {
		manifestPath := filepath.Join(d, ManifestFilename)
		if info, err := os.Stat(manifestPath); err == nil && !info.IsDir() {
			raw, err := maybeReadTOML[projectManifestTOML](manifestPath, projectManifestKey)
			if err != nil {
				return ProjectInfo{}, err
			}
			if raw != nil {
				m, err := raw.toProjectManifest()
				if err != nil {
					return ProjectInfo{}, err
				}
				if m.Project.Version.Compare(version.Empty()) <= 0 {
					return ProjectInfo{}, &sqiglerr.InvalidProjectVersion{}
				}
				return ProjectInfo{Project: m.Project, Database: m.Database, Root: d}, nil
			}
		}

		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return ProjectInfo{}, &sqiglerr.ManifestNotFound{Dir: directory}
}

// UpdateProjectVersion rewrites info's project manifest in place, setting
// [project].version to newVersion and leaving every other key untouched.
func UpdateProjectVersion(newVersion *version.Version, info ProjectInfo) error {
	path := info.ProjectManifestPath()
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := toml.Unmarshal(content, &doc); err != nil {
		return err
	}
	project, ok := doc[projectManifestKey].(map[string]any)
	if !ok {
		project = map[string]any{}
	}
	project["version"] = newVersion.String()
	doc[projectManifestKey] = project

	out, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return fsutil.ReplaceFile(string(out), path)
}

var errNoDatabase = errors.New("database configuration must set exactly one of postgres or sqlite")

// Validate reports an error if d sets zero or both of Postgres and Sqlite.
func (d Database) Validate() error {
	if (d.Postgres == nil) == (d.Sqlite == nil) {
		return errNoDatabase
	}
	return nil
}
