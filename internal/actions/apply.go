package actions

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/backend"
	"github.com/sqigl/sqigl/internal/manifest"
	"github.com/sqigl/sqigl/internal/migration"
	"github.com/sqigl/sqigl/internal/sqiglerr"
	"github.com/sqigl/sqigl/internal/version"
)

// ApplyArtifact opens driver, confirms a is compatible with the
// database's current project version, and applies it.
func ApplyArtifact(ctx context.Context, driver backend.Driver, a artifact.Artifact) (backend.SqiglState, error) {
	log.Info().Msg("applying migration")

	state, err := driver.Open(ctx)
	if err != nil {
		return backend.SqiglState{}, err
	}
	if !a.Compatible(state.ProjectVersion) {
		return backend.SqiglState{}, fmt.Errorf("cannot apply: the database is not compatible with this artifact")
	}

	state, err = driver.Apply(ctx, a)
	if err != nil {
		return backend.SqiglState{}, err
	}
	log.Info().Msg("migration complete")
	return state, nil
}

// ApplyVersion looks up the saved migration taking the database's current
// version to v and applies it.
func ApplyVersion(ctx context.Context, v *version.Version, info manifest.ProjectInfo, driver backend.Driver) error {
	log.Info().Str("version", v.String()).Msg("migrating")

	state, err := driver.Open(ctx)
	if err != nil {
		return err
	}
	log.Debug().Str("version", state.ProjectVersion.String()).Msg("current version")

	set, err := migration.OpenSet(info)
	if err != nil {
		return err
	}
	m := set.Get(state.ProjectVersion, v)
	if m == nil {
		return &sqiglerr.NoSavedMigration{From: state.ProjectVersion.String(), To: v.String()}
	}

	_, err = ApplyArtifact(ctx, driver, m)
	return err
}

// CheckArtifact runs a against driver inside a transaction that is always
// rolled back, to validate it without mutating the database.
func CheckArtifact(ctx context.Context, a artifact.Artifact, driver backend.Driver) error {
	return driver.Check(ctx, a)
}
