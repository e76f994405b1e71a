package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/havenhq/chronicle/cli/config"
	"github.com/havenhq/chronicle/cli/styles"
	"github.com/havenhq/chronicle/cli/ui"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the event store schema",
		Long: `Create the events table (and schema for PostgreSQL) if it does not exist.

Running it again is safe. The memory driver keeps nothing between runs and
needs no migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if rt.Config.Database.Driver == config.DriverMemory {
				fmt.Fprintln(out, styles.FormatInfo("Memory driver doesn't require migrations"))
				return nil
			}

			var session *Session
			err := ui.Spin(cmd.Context(), cmd.InOrStdin(), out, "Connecting to database...", "Connected to database",
				func(ctx context.Context) error {
					var err error
					session, err = rt.Open(ctx)
					return err
				})
			if session != nil {
				defer session.Close()
			}
			if err != nil {
				return err
			}

			if err := session.Store.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			rt.Logger.Info("event store initialized", "driver", rt.Config.Database.Driver, "table", rt.Config.Database.Table)
			fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Event store ready (%s)", rt.Config.Database.Driver)))
			return nil
		},
	}
}
