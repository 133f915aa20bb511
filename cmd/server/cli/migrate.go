package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gadgets/internal/db"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		Long: `Apply or roll back the database schema.

PostgreSQL uses the embedded SQL migrations; SQLite databases are
created from the models.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(log *zap.Logger, gdb *gorm.DB, m *db.Migrator) error {
				if m == nil {
					log.Info("Creating schema from models")
					return db.AutoMigrate(gdb)
				}
				return m.Up()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(log *zap.Logger, gdb *gorm.DB, m *db.Migrator) error {
				if m == nil {
					return errors.New("migrate down is only supported on postgres")
				}
				return m.Down()
			})
		},
	})

	return cmd
}

// withMigrator passes a nil Migrator for SQLite.
func withMigrator(fn func(*zap.Logger, *gorm.DB, *db.Migrator) error) error {
	log, gdb, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close(gdb)
		_ = log.Sync()
	}()

	if opts.cfg.Database.Driver != "postgres" {
		return fn(log, gdb, nil)
	}

	m, err := db.NewMigrator(gdb, log)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	return fn(log, gdb, m)
}
