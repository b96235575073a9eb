package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/incident-etl/internal/sink"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostGIS sink tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		pg := sink.NewPostgres(cfg.Sink.Postgres.DatabaseURL, cfg.Sink.Postgres.Table)
		if err := pg.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("postgres sink migrated", zap.String("table", cfg.Sink.Postgres.Table))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
