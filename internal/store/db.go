package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func ConnectPGDB(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	// Retry up to 10 times, waiting 3 seconds between attempts
	for i := 1; i <= 10; i++ {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			logger.Warn("failed to open DB", zap.Int("attempt", i), zap.Error(err))
		} else {
			err = db.PingContext(ctx)
			if err == nil {
				logger.Info("connected to postgres")
				return db, nil
			}
			db.Close()
			logger.Warn("DB not ready", zap.Int("attempt", i), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}

	return nil, fmt.Errorf("could not connect to database after multiple attempts: %w", err)
}

func MigrateFS(db *sql.DB, migrationsFS fs.FS, dir string) error {
	return migrateFS(db, "postgres", migrationsFS, dir)
}

// MigrateClickhouse applies the event store schema through clickhouse-go's
// database/sql driver.
func MigrateClickhouse(db *sql.DB, migrationsFS fs.FS, dir string) error {
	return migrateFS(db, "clickhouse", migrationsFS, dir)
}

func migrateFS(db *sql.DB, dialect string, migrationsFS fs.FS, dir string) error {
	goose.SetBaseFS(migrationsFS)
	defer func() {
		goose.SetBaseFS(nil)
	}()
	return migrate(db, dialect, dir)
}

func Migrate(db *sql.DB, dir string) error {
	return migrate(db, "postgres", dir)
}

func migrate(db *sql.DB, dialect, dir string) error {
	err := goose.SetDialect(dialect)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	err = goose.Up(db, dir)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
