package command

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sqigl/sqigl/internal/actions"
	"github.com/sqigl/sqigl/internal/version"
)

var migrationCmd = &cobra.Command{
	Use:   "migration",
	Short: "Migration authoring commands",
}

func parseFromTo(fromArg, toArg string, currentVersion *version.Version) (*version.Version, *version.Version, error) {
	from, err := version.Parse(fromArg)
	if err != nil {
		return nil, nil, err
	}
	to := currentVersion
	if toArg != "" {
		to, err = version.Parse(toArg)
		if err != nil {
			return nil, nil, err
		}
	}
	return from, to, nil
}

var (
	migrationCreateCmd = &cobra.Command{
		Use:   "create <from> [to] [project]",
		Short: "Create a new, empty migration script",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			toArg, project := "", ""
			if len(args) >= 2 {
				toArg = args[1]
			}
			if len(args) == 3 {
				project = args[2]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			from, to, err := parseFromTo(args[0], toArg, info.Project.Version)
			if err != nil {
				return err
			}
			return actions.CreateMigration(from, to, info)
		},
	}

	migrationGenerateCmd = &cobra.Command{
		Use:   "generate <from> [to] [project]",
		Short: "Generate a migration by diffing two saved schemas",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			toArg, project := "", ""
			if len(args) >= 2 {
				toArg = args[1]
			}
			if len(args) == 3 {
				project = args[2]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			from, to, err := parseFromTo(args[0], toArg, info.Project.Version)
			if err != nil {
				return err
			}
			driver, err := openBackend(context.Background(), info)
			if err != nil {
				return err
			}
			return actions.GenerateMigration(context.Background(), from, to, driver, info)
		},
	}
)

func init() {
	migrationCmd.AddCommand(migrationCreateCmd, migrationGenerateCmd)
	rootCmd.AddCommand(migrationCmd)
}
