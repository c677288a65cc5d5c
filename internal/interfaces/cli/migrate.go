package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

type schemaMigrator interface {
	Up() error
	Down(steps int) error
	Status() (postgres.MigrationState, error)
}

// openMigrator connects to the configured database.  Tests replace it.
var openMigrator = func(cfg config.PostgresConfig, logger logging.Logger) (schemaMigrator, func() error, error) {
	conn, err := postgres.NewConnection(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewMigrator(conn.DB(), logger), conn.Close, nil
}

// NewMigrateCmd creates the migrate command group for the result repository
// schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL result repository schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(cliCtx *CLIContext, m schemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				st, err := m.Status()
				if err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("schema at version %d", st.Version))
				return nil
			})
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the given number of migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.InvalidParam("--steps must be at least 1")
			}
			return withMigrator(cmd, func(cliCtx *CLIContext, m schemaMigrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				PrintSuccess(cmd, "rolled back "+strconv.Itoa(steps)+" migration(s)")
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the applied and latest schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(cliCtx *CLIContext, m schemaMigrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				if cliCtx.OutputFormat == FormatJSON {
					return printJSON(cmd, st)
				}
				state := color.GreenString("up to date")
				switch {
				case st.Dirty:
					state = color.RedString("dirty")
				case st.Pending():
					state = color.YellowString("%d pending", st.Latest-st.Version)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d\nlatest:  %d\nstate:   %s\n", st.Version, st.Latest, state)
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd, downCmd, statusCmd)
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(*CLIContext, schemaMigrator) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	m, closeFn, err := openMigrator(cliCtx.Config.Postgres, cliCtx.Logger)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(cliCtx, m)
}
