// Package actions implements the operations sqigl's CLI commands drive:
// creating projects, starting features, saving and releasing builds, and
// applying or checking migrations against a database.
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
	"github.com/sqigl/sqigl/internal/sqiglerr"
	"github.com/sqigl/sqigl/internal/validate"
	"github.com/sqigl/sqigl/internal/version"
)

// PatchFilenamePrefix names an empty migration script created by
// CreateMigration, before the author fills it in.
const PatchFilenamePrefix = "from_"

// CreateProject lays out a new project's directory structure (src/ and
// artifacts/) and writes its initial sqigl.toml at manifestPath.
func CreateProject(manifestPath, title string, db manifest.Database) error {
	log.Info().Msg("creating new project")

	if _, err := os.Stat(manifestPath); err == nil {
		return &sqiglerr.AlreadyExists{Path: manifestPath}
	}
	root := filepath.Dir(manifestPath)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := os.Mkdir(filepath.Join(root, manifest.SourceDirectory), 0o755); err != nil {
		return err
	}
	if err := os.Mkdir(filepath.Join(root, manifest.ArtifactsDirectory), 0o755); err != nil {
		return err
	}

	m := manifest.NewProjectManifest(title, db)
	return m.Write(root)
}

// NewFeature assigns a project a preliminary feature version: the next
// minor release, tagged with title as its prerelease identifier. It
// refuses to run on a project that is already on a feature version.
func NewFeature(title string, info manifest.ProjectInfo) (*version.Version, error) {
	log.Info().Msg("creating new feature version")

	if err := validate.Struct(validate.FeatureTitle{Title: title}); err != nil {
		return nil, fmt.Errorf("invalid feature title: %w", err)
	}

	current := info.Project.Version
	if current.Prerelease() != "" {
		return nil, fmt.Errorf("cannot create new feature version: already on a feature version")
	}

	newVersion, err := version.Parse(fmt.Sprintf("%d.%d.0-%s", current.Major(), current.Minor()+1, title))
	if err != nil {
		return nil, err
	}

	if err := manifest.UpdateProjectVersion(newVersion, info); err != nil {
		return nil, err
	}
	return newVersion, nil
}

// CreateMigration creates an empty migration script for the from -> to
// transition and records it in the destination version's artifact
// manifest, ready for an author to fill in by hand.
func CreateMigration(from, to *version.Version, info manifest.ProjectInfo) error {
	log.Info().Msg("creating new migration")

	scriptName := fmt.Sprintf("%s%s%s", PatchFilenamePrefix, from, build.SQLExtension)
	artifactDir := filepath.Join(info.ArtifactsDir(), version.Normalize(to).String())
	path := filepath.Join(artifactDir, scriptName)

	if _, err := os.Stat(path); err == nil {
		return &sqiglerr.AlreadyExists{Path: path}
	}
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return err
	}

	return manifest.UpdateArtifactMigration(manifest.Migration{
		Script: scriptName,
		From:   version.FromMinor(from),
		To:     to,
	}, artifactDir)
}

// GenerateMigration builds the from and to schemas from the project's
// saved migrations, asks driver to diff them, and saves the result as a
// new migration.
func GenerateMigration(ctx context.Context, from, to *version.Version, driver backend.Driver, info manifest.ProjectInfo) error {
	log.Info().Msg("generating migration")

	set, err := migration.OpenSet(info)
	if err != nil {
		return err
	}
	fromSchema := set.GetSchema(from)
	if fromSchema == nil {
		return fmt.Errorf("could not find schema for %s", from)
	}
	toSchema := set.GetSchema(to)
	if toSchema == nil {
		return fmt.Errorf("could not find schema for %s", to)
	}

	generated, err := driver.GenerateMigration(ctx, fromSchema, toSchema)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s%s", PatchFilenamePrefix, from)
	_, err = migration.SaveMigration(title, generated, info)
	return err
}
