// Package migration implements saved migrations: the artifacts produced
// by a release or a manually authored delta script, recorded in an
// artifact directory's sqigl.toml so a later apply can find the path
// from whatever version a database is at to the project's current one.
package migration

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/build"
	"github.com/sqigl/sqigl/internal/fsutil"
	"github.com/sqigl/sqigl/internal/manifest"
	"github.com/sqigl/sqigl/internal/version"
)

// SaveMigration writes artifact's scripts to a new file named title.sql
// inside the artifact directory for the version it produces, and records
// it in that directory's sqigl.toml. It returns the path the script was
// written to.
func SaveMigration(title string, a artifact.Artifact, info manifest.ProjectInfo) (string, error) {
	from, to := a.Spec()
	log.Trace().Str("from", from.String()).Str("to", to.String()).Msg("saving migration")

	versionDir := filepath.Join(info.ArtifactsDir(), version.Normalize(to).String())
	script := title + build.SQLExtension
	scriptPath := filepath.Join(versionDir, script)

	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return "", err
	}
	if _, err := fsutil.ReplaceArtifact(a, scriptPath); err != nil {
		return "", err
	}

	m := manifest.Migration{Script: script, From: from, To: to}
	if err := manifest.UpdateArtifactMigration(m, versionDir); err != nil {
		return "", err
	}

	return scriptPath, nil
}

// Artifact is a single saved migration script, read back off disk. Its
// content id is the SHA-256 of the script file's bytes verbatim — a saved
// migration is never reformatted the way a fresh build's header and
// per-script comments are.
type Artifact struct {
	from   version.Req
	to     *version.Version
	script string
}

// Script is the path to this migration's SQL file.
func (m *Artifact) Script() string { return m.script }

func (m *Artifact) Compatible(v *version.Version) bool { return m.from.Matches(v) }

func (m *Artifact) Version() *version.Version { return m.to }

func (m *Artifact) Spec() (version.Req, *version.Version) { return m.from, m.to }

func (m *Artifact) Scripts(consumer artifact.ScriptConsumer) (artifact.ContentId, error) {
	code, err := os.ReadFile(m.script)
	if err != nil {
		return artifact.ContentId{}, artifact.IOError(err)
	}

	h := sha256.Sum256(code)
	var id artifact.ContentId
	copy(id[:], h[:])

	if err := consumer.Accept(string(code)); err != nil {
		return artifact.ContentId{}, err
	}
	if err := consumer.Commit(id); err != nil {
		return artifact.ContentId{}, err
	}
	return id, nil
}

type setEntry struct {
	version    *version.Version
	path       string
	migrations []manifest.Migration
}

// Set is every saved migration across a project's artifacts directory,
// indexed by the version each one produces.
type Set struct {
	entries []setEntry
}

// OpenSet enumerates info's artifacts directory and loads every artifact
// subdirectory's migration manifest.
func OpenSet(info manifest.ProjectInfo) (*Set, error) {
	log.Debug().Msg("enumerating migrations")

	artifactsDir := info.ArtifactsDir()
	children, err := os.ReadDir(artifactsDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", artifactsDir, err)
	}

	byVersion := map[string]*setEntry{}
	for _, child := range children {
		path := filepath.Join(artifactsDir, child.Name())
		if !child.IsDir() {
			log.Warn().Str("path", path).Msg("ignoring: not a directory")
			continue
		}

		artifactInfo, err := manifest.OpenArtifact(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, m := range artifactInfo.Migrations {
			key := m.To.String()
			entry, ok := byVersion[key]
			if !ok {
				entry = &setEntry{version: m.To, path: path}
				byVersion[key] = entry
			}
			entry.migrations = append(entry.migrations, m)
		}
	}

	entries := make([]setEntry, 0, len(byVersion))
	for _, e := range byVersion {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].version.Compare(entries[j].version) < 0
	})

	return &Set{entries: entries}, nil
}

// IsEmpty reports whether no migrations have been saved at all.
func (s *Set) IsEmpty() bool {
	return len(s.entries) == 0
}

// LatestReleasedVersion returns the highest version with no prerelease
// tag that has a saved migration, or nil if there is none.
func (s *Set) LatestReleasedVersion() *version.Version {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].version.Prerelease() == "" {
			return s.entries[i].version
		}
	}
	return nil
}

// LatestCompatible returns the highest-versioned saved migration whose
// "from" requirement matches v. Kept for callers outside this package's
// current scope, mirroring the upstream engine's public surface.
func (s *Set) LatestCompatible(v *version.Version) *Artifact {
	for i := len(s.entries) - 1; i >= 0; i-- {
		for _, m := range s.entries[i].migrations {
			if m.From.Matches(v) {
				return &Artifact{from: m.From, to: m.To, script: filepath.Join(s.entries[i].path, m.Script)}
			}
		}
	}
	return nil
}

// Get returns the first saved migration that produces exactly to and whose
// "from" requirement matches from, if one was recorded.
func (s *Set) Get(from, to *version.Version) *Artifact {
	for _, e := range s.entries {
		if !e.version.Equal(to) {
			continue
		}
		for _, m := range e.migrations {
			if m.From.Matches(from) {
				return &Artifact{from: m.From, to: m.To, script: filepath.Join(e.path, m.Script)}
			}
		}
	}
	return nil
}

// GetSchema returns the saved migration that builds version from scratch,
// if one was recorded.
func (s *Set) GetSchema(v *version.Version) *Artifact {
	return s.Get(version.Empty(), v)
}
