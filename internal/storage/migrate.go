package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// withMigrator opens golang-migrate on the Postgres schema directory, runs
// fn and closes both source and database handles
func withMigrator(databaseURL, migrationsPath string, fn func(m *migrate.Migrate) error) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", migrationsPath, err)
	}
	defer func() { _, _ = m.Close() }()
	return fn(m)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// RunMigrations applies all pending Postgres migrations
func RunMigrations(databaseURL, migrationsPath string) error {
	return withMigrator(databaseURL, migrationsPath, func(m *migrate.Migrate) error {
		if err := ignoreNoChange(m.Up()); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// RollbackMigrations reverts the last steps migrations, at least one
func RollbackMigrations(databaseURL, migrationsPath string, steps int) error {
	steps = max(steps, 1)
	return withMigrator(databaseURL, migrationsPath, func(m *migrate.Migrate) error {
		if err := ignoreNoChange(m.Steps(-steps)); err != nil {
			return fmt.Errorf("migrate down %d: %w", steps, err)
		}
		return nil
	})
}

// MigrationVersion reports the applied version. A fresh database is
// version 0.
func MigrationVersion(databaseURL, migrationsPath string) (version uint, dirty bool, err error) {
	err = withMigrator(databaseURL, migrationsPath, func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, nil
}
