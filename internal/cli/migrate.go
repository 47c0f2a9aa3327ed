package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utafrali/shopindex/internal/config"
	"github.com/utafrali/shopindex/migrations"
	"github.com/utafrali/shopindex/pkg/database"
)

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending record store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if cfg.RecordStore != config.StorePostgres {
				return errors.New("migrate requires RECORD_STORE=postgres")
			}
			log := e.logger(cfg)

			ctx := cmd.Context()
			pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := database.RunMigrations(ctx, pool, migrations.FS, log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Schema is up to date.")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintln(out, "applied", v)
			}
			return nil
		},
	}
}
