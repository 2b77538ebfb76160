package cmd

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

const migrationsTable = "schema_migrations"

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "Apply the rental schema migrations under db/migrations",
		Long: `Applies vehicles, drivers, bookings and payments migrations.
Use --rollback to undo the latest one, --to to stop at a version and
--status to list what has been applied.`,
	}
	migrateRollback bool
	migrateStatus   bool
	migrateTo       int64
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "roll back the latest migration, or down to --to when set")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print applied and pending migrations")
	migrateCmd.Flags().Int64Var(&migrateTo, "to", 0, "target migration version")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "db/migrations", "sql migrations directory")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("goose: failed to open DB: %w", err)
	}
	defer db.Close()
	goose.SetTableName(migrationsTable)

	switch {
	case migrateStatus:
		err = goose.StatusContext(ctx, db, migrateDir)
	case migrateRollback && migrateTo > 0:
		err = goose.DownToContext(ctx, db, migrateDir, migrateTo)
	case migrateRollback:
		err = goose.DownContext(ctx, db, migrateDir)
	case migrateTo > 0:
		err = goose.UpToContext(ctx, db, migrateDir, migrateTo)
	default:
		err = goose.UpContext(ctx, db, migrateDir)
	}
	if err != nil {
		return fmt.Errorf("goose: migration failed: %w", err)
	}

	return nil
}
