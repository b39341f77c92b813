package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sqigl/sqigl/internal/actions"
	"github.com/sqigl/sqigl/internal/artifact"
	"github.com/sqigl/sqigl/internal/build"
	"github.com/sqigl/sqigl/internal/manifest"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project lifecycle commands",
}

func init() {
	rootCmd.AddCommand(projectCmd)
}

// databaseFromKind parses the database-kind argument of init and create
// ("postgres" or "sqlite") into a fresh, empty manifest.Database of that
// kind.
func databaseFromKind(kind string) (manifest.Database, error) {
	switch kind {
	case "postgres":
		return manifest.Database{Postgres: &manifest.PostgresDatabase{}}, nil
	case "sqlite":
		return manifest.Database{Sqlite: &manifest.SqliteDatabase{}}, nil
	default:
		return manifest.Database{}, fmt.Errorf("unknown database kind %q: want postgres or sqlite", kind)
	}
}

func openProjectArg(arg string) (manifest.ProjectInfo, error) {
	dir := arg
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return manifest.ProjectInfo{}, err
	}
	return manifest.OpenProject(abs)
}

var (
	initCmd = &cobra.Command{
		Use:   "init <title> <postgres|sqlite>",
		Short: "Initialize a new project in the current directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, kind := args[0], args[1]
			db, err := databaseFromKind(kind)
			if err != nil {
				return err
			}
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			manifestPath := filepath.Join(wd, manifest.ManifestFilename)
			return actions.CreateProject(manifestPath, title, db)
		},
	}

	createCmd = &cobra.Command{
		Use:   "create <title> <postgres|sqlite> [directory]",
		Short: "Create a new sqigl project",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, kind := args[0], args[1]
			directory := "."
			if len(args) == 3 {
				directory = args[2]
			}
			db, err := databaseFromKind(kind)
			if err != nil {
				return err
			}
			manifestPath := filepath.Join(directory, title, manifest.ManifestFilename)
			return actions.CreateProject(manifestPath, title, db)
		},
	}

	featureCmd = &cobra.Command{
		Use:   "feature <title> [project]",
		Short: "Begin working on a new feature version",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := args[0]
			project := ""
			if len(args) == 2 {
				project = args[1]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			newVersion, err := actions.NewFeature(title, info)
			if err != nil {
				return err
			}
			log.Info().Str("version", newVersion.String()).Msg("assigned preliminary version")
			return nil
		},
	}

	buildOutput string
	buildQuiet  bool
	buildCmd    = &cobra.Command{
		Use:   "build [project]",
		Short: "Build a sqigl project, and output its contents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			built, err := build.BuildProject(info)
			if err != nil {
				return err
			}

			if buildOutput != "" {
				if _, err := os.Stat(buildOutput); err == nil {
					return fmt.Errorf("output already exists")
				}
				f, err := os.Create(buildOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = artifact.WriteTo(built, f)
				return err
			}
			if !buildQuiet {
				_, err = artifact.WriteTo(built, os.Stdout)
				return err
			}
			return nil
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check [project]",
		Short: "Build and apply the current version to an empty database to check for errors, then roll back",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			built, err := build.BuildProject(info)
			if err != nil {
				return err
			}
			driver, err := openBackend(context.Background(), info)
			if err != nil {
				return err
			}
			return actions.CheckArtifact(context.Background(), built, driver)
		},
	}

	applyCmd = &cobra.Command{
		Use:   "apply [project]",
		Short: "Apply the current state of the project to the database (development use)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			built, err := build.BuildProject(info)
			if err != nil {
				return err
			}
			driver, err := openBackend(context.Background(), info)
			if err != nil {
				return err
			}
			_, err = actions.ApplyArtifact(context.Background(), driver, built)
			return err
		},
	}

	saveCmd = &cobra.Command{
		Use:   "save [project]",
		Short: "Build the current version of the project and save it as a migration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			return actions.SaveProject(info)
		},
	}

	releaseLevel string
	releaseCmd   = &cobra.Command{
		Use:   "release [project]",
		Short: "Assign the project a release number and save it under its new version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			level, err := parseReleaseLevel(releaseLevel)
			if err != nil {
				return err
			}
			driver, err := openBackend(context.Background(), info)
			if err != nil {
				return err
			}
			newVersion, err := actions.Release(context.Background(), level, info, driver)
			if err != nil {
				return err
			}
			log.Info().Str("version", newVersion.String()).Msg("released version")
			return nil
		},
	}
)

func parseReleaseLevel(s string) (actions.ReleaseLevel, error) {
	switch s {
	case "patch":
		return actions.ReleasePatch, nil
	case "minor":
		return actions.ReleaseMinor, nil
	case "major":
		return actions.ReleaseMajor, nil
	default:
		return 0, fmt.Errorf("unknown release level %q: want patch, minor, or major", s)
	}
}

func init() {
	buildCmd.Flags().StringVar(&buildOutput, "output", "", "write output to a file instead of printing it to stdout")
	buildCmd.Flags().BoolVarP(&buildQuiet, "quiet", "q", false, "do not print the build to stdout")
	releaseCmd.Flags().StringVar(&releaseLevel, "level", "patch", "release level: patch, minor, or major")

	projectCmd.AddCommand(initCmd, createCmd, featureCmd, buildCmd, checkCmd, applyCmd, saveCmd, releaseCmd)
}
