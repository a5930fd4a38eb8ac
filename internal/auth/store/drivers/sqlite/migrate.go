package sqlite

import (
	"errors"

	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ApplyMigrations applies any pending migrations from the embedded migration
// files to the store's database.
func (s *Store) ApplyMigrations() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrationVersion reports the applied schema version and whether the last
// migration left the database dirty.
func (s *Store) MigrationVersion() (uint, bool, error) {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return 0, false, err
	}
	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return 0, false, err
	}
	instance, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := instance.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
