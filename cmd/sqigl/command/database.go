package command

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sqigl/sqigl/internal/actions"
	"github.com/sqigl/sqigl/internal/version"
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Production database rollout commands",
}

var (
	dbInstallCmd = &cobra.Command{
		Use:   "install [project]",
		Short: "Install sqigl's tracking schema onto the database",
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
			driver, err := openBackend(context.Background(), info)
			if err != nil {
				return err
			}
			_, err = driver.Install(context.Background())
			return err
		},
	}

	dbApplyCmd = &cobra.Command{
		Use:   "apply <version> [project]",
		Short: "Apply the saved migration taking the database to the given version",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := version.Parse(args[0])
			if err != nil {
				return err
			}
			project := ""
			if len(args) == 2 {
				project = args[1]
			}
			info, err := openProjectArg(project)
			if err != nil {
				return err
			}
			driver, err := openBackend(context.Background(), info)
			if err != nil {
				return err
			}
			return actions.ApplyVersion(context.Background(), v, info, driver)
		},
	}
)

func init() {
	databaseCmd.AddCommand(dbInstallCmd, dbApplyCmd)
	rootCmd.AddCommand(databaseCmd)
}
