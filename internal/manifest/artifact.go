package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/sqigl/sqigl/internal/fsutil"
	"github.com/sqigl/sqigl/internal/sqiglerr"
	"github.com/sqigl/sqigl/internal/version"
)

const migrationsKey = "migrations"

// Migration is one saved migration script: the requirement it expects of
// the database it is applied to, and the version it leaves the database
// at.
type Migration struct {
	Script string
	From   version.Req
	To     *version.Version
}

type migrationTOML struct {
	Script string `toml:"script"`
	From   string `toml:"from"`
	To     string `toml:"to"`
}

func (m Migration) toTOML() migrationTOML {
	return migrationTOML{Script: m.Script, From: m.From.String(), To: m.To.String()}
}

func (raw migrationTOML) toMigration() (Migration, error) {
	var from version.Req
	if err := from.UnmarshalText([]byte(raw.From)); err != nil {
		return Migration{}, fmt.Errorf("migration %s: from %q: %w", raw.Script, raw.From, err)
	}
	to, err := version.Parse(raw.To)
	if err != nil {
		return Migration{}, fmt.Errorf("migration %s: to %q: %w", raw.Script, raw.To, err)
	}
	return Migration{Script: raw.Script, From: from, To: to}, nil
}

// ArtifactManifest is the parsed content of a saved artifact directory's
// sqigl.toml: the chain of migrations that were generated to reach each
// successive project version.
type ArtifactManifest struct {
	Migrations []Migration
}

type artifactManifestTOML struct {
	Migrations []migrationTOML `toml:"migrations"`
}

// ArtifactInfo is an artifact manifest as loaded from disk.
type ArtifactInfo struct {
	Migrations []Migration
}

// OpenArtifact loads the manifest in directory. Unlike OpenModule, a saved
// artifact directory without a manifest is an error: every artifact
// directory is created together with its sqigl.toml.
func OpenArtifact(directory string) (ArtifactInfo, error) {
	manifestPath := filepath.Join(directory, ManifestFilename)
	if info, err := os.Stat(manifestPath); err != nil || info.IsDir() {
		return ArtifactInfo{}, &sqiglerr.ManifestNotFound{Dir: directory}
	}

	raw, err := readTOML[artifactManifestTOML](manifestPath)
	if err != nil {
		return ArtifactInfo{}, err
	}

	migrations := make([]Migration, 0, len(raw.Migrations))
	for _, rm := range raw.Migrations {
		if strings.Contains(rm.Script, "/") {
			return ArtifactInfo{}, &sqiglerr.InvalidScriptName{Script: rm.Script}
		}
		m, err := rm.toMigration()
		if err != nil {
			return ArtifactInfo{}, err
		}
		migrations = append(migrations, m)
	}
	return ArtifactInfo{Migrations: migrations}, nil
}

// UpdateArtifactMigration records migration in artifactDirectory's
// sqigl.toml, replacing any existing entry for the same script.
func UpdateArtifactMigration(migration Migration, artifactDirectory string) error {
	path := filepath.Join(artifactDirectory, ManifestFilename)

	doc := map[string]any{}
	if content, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(content, &doc); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	entries, _ := doc[migrationsKey].([]any)
	replaced := false
	for i, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := entry["script"].(string); ok && s == migration.Script {
			entries[i] = migrationEntry(migration)
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, migrationEntry(migration))
	}
	doc[migrationsKey] = entries

	out, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return fsutil.ReplaceFile(string(out), path)
}

func migrationEntry(m Migration) map[string]any {
	return map[string]any{
		"script": m.Script,
		"from":   m.From.String(),
		"to":     m.To.String(),
	}
}

// UpdateMigrationVersions moves (or creates) the artifact directory for
// newVersion and rewrites every migration entry in it whose "to" equals
// oldVersion to point at newVersion instead. This is the step a release
// performs once a feature's working version is promoted to a released
// one.
func UpdateMigrationVersions(oldVersion, newVersion *version.Version, info ProjectInfo) error {
	artifactsDir := info.ArtifactsDir()
	oldModule := filepath.Join(artifactsDir, version.Normalize(oldVersion).String())
	newModule := filepath.Join(artifactsDir, version.Normalize(newVersion).String())

	oldExists := dirExists(oldModule)
	newExists := dirExists(newModule)

	switch {
	case oldExists && !newExists:
		if err := os.Rename(oldModule, newModule); err != nil {
			return err
		}
	case !oldExists && !newExists:
		if err := os.MkdirAll(newModule, 0o755); err != nil {
			return err
		}
	case oldExists && newExists:
		return &sqiglerr.AlreadyExists{Path: newModule}
	case !oldExists && newExists:
		return &sqiglerr.AlreadyExists{Path: newModule}
	}

	manifestPath := filepath.Join(newModule, ManifestFilename)
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var doc map[string]any
	if err := toml.Unmarshal(content, &doc); err != nil {
		return err
	}
	entries, _ := doc[migrationsKey].([]any)
	newVersionStr := newVersion.String()
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		to, ok := entry["to"].(string)
		if !ok {
			continue
		}
		toVersion, err := version.Parse(to)
		if err != nil {
			continue
		}
		if toVersion.Equal(oldVersion) {
			entry["to"] = newVersionStr
		}
	}
	doc[migrationsKey] = entries

	out, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return fsutil.ReplaceFile(string(out), manifestPath)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
