package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/sqigl/sqigl/internal/backend"
	"github.com/sqigl/sqigl/internal/build"
	"github.com/sqigl/sqigl/internal/manifest"
	"github.com/sqigl/sqigl/internal/migration"
	"github.com/sqigl/sqigl/internal/version"
)

// SaveProject builds the project at its current version and saves the
// result as that version's schema migration.
func SaveProject(info manifest.ProjectInfo) error {
	log.Info().Msg("saving project")

	v := info.Project.Version
	built, err := build.BuildProject(info)
	if err != nil {
		return err
	}

	versionDir := filepath.Join(info.ArtifactsDir(), version.Normalize(v).String())
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return err
	}

	_, err = migration.SaveMigration("schema", built, info)
	return err
}

// ReleaseLevel is the component of a semantic version a release bumps.
type ReleaseLevel int

const (
	ReleasePatch ReleaseLevel = iota
	ReleaseMinor
	ReleaseMajor
)

// ReleaseVersion computes the next release version at this level above
// latest, always clearing prerelease and build metadata — a release is by
// definition not a prerelease.
func (l ReleaseLevel) ReleaseVersion(latest *version.Version) (*version.Version, error) {
	var s string
	switch l {
	case ReleasePatch:
		s = fmt.Sprintf("%d.%d.%d", latest.Major(), latest.Minor(), latest.Patch()+1)
	case ReleaseMinor:
		s = fmt.Sprintf("%d.%d.0", latest.Major(), latest.Minor()+1)
	case ReleaseMajor:
		s = fmt.Sprintf("%d.0.0", latest.Major()+1)
	default:
		return nil, fmt.Errorf("unknown release level %d", l)
	}
	return version.Parse(s)
}

// Release assigns the project a release version, derived from the higher
// of its latest locally-saved release and the database's currently
// applied version, updates every manifest that names the old version, and
// saves the project under its new version.
func Release(ctx context.Context, level ReleaseLevel, info manifest.ProjectInfo, driver backend.Driver) (*version.Version, error) {
	if info.Project.Version.Prerelease() == "" {
		log.Warn().Msg("not on a feature version")
	}

	if _, err := build.BuildProject(info); err != nil {
		return nil, err
	}

	log.Info().Msg("releasing project")
	oldVersion := info.Project.Version
	log.Debug().Str("version", oldVersion.String()).Msg("current version")

	set, err := migration.OpenSet(info)
	if err != nil {
		return nil, err
	}
	latestLocal := set.LatestReleasedVersion()
	if latestLocal == nil {
		latestLocal = version.Empty()
	}
	log.Debug().Str("version", latestLocal.String()).Msg("latest local version")

	state, err := driver.Open(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("version", state.ProjectVersion.String()).Msg("latest remote version")

	latest := latestLocal
	if state.ProjectVersion.GreaterThan(latest) {
		latest = state.ProjectVersion
	}

	newVersion, err := level.ReleaseVersion(latest)
	if err != nil {
		return nil, err
	}
	log.Info().Str("version", newVersion.String()).Msg("assigned version to this release")

	if err := manifest.UpdateProjectVersion(newVersion, info); err != nil {
		return nil, err
	}
	log.Info().Msg("updated project manifest")

	if err := manifest.UpdateMigrationVersions(oldVersion, newVersion, info); err != nil {
		return nil, err
	}

	info.Project.Version = newVersion
	if err := SaveProject(info); err != nil {
		return nil, err
	}
	return newVersion, nil
}
