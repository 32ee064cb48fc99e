// internal/database/migration.go
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SchemaVersion is the state of the captures schema
type SchemaVersion struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// Migrator applies the embedded capture schema migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	var applied SchemaVersion
	err := m.run(func(mg *migrate.Migrate) error {
		if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		v, err := readVersion(mg)
		applied = v
		return err
	})
	if err != nil {
		return err
	}

	m.logger.Info("Database migrations completed",
		zap.Uint("schema_version", applied.Version),
	)
	return nil
}

// Version reports the applied schema version. A database without any
// applied migration reports version 0.
func (m *Migrator) Version() (SchemaVersion, error) {
	var v SchemaVersion
	err := m.run(func(mg *migrate.Migrate) error {
		var err error
		v, err = readVersion(mg)
		return err
	})
	return v, err
}

func readVersion(mg *migrate.Migrate) (SchemaVersion, error) {
	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaVersion{Version: version, Dirty: dirty}, nil
}

// run opens a migrate instance over the embedded files for the duration of
// fn. It holds one pooled connection rather than the whole *sql.DB so that
// closing the instance leaves the service pool open.
func (m *Migrator) run(fn func(*migrate.Migrate) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		source.Close()
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		source.Close()
		conn.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		source.Close()
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer mg.Close()

	return fn(mg)
}
