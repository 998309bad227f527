package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/airquality.report/internal/db"
)

const migrateUsage = "usage: airquality -db <path> migrate up|down|status"

// runMigrate applies, rolls back one step of, or reports the mirror schema
// and prints the resulting version.
func runMigrate(w io.Writer, path string, args []string) error {
	if path == "" {
		return errors.New("migrate requires -db")
	}
	if len(args) != 1 {
		return errors.New(migrateUsage)
	}

	d, err := db.OpenDB(path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer d.Close()

	fsys := db.MigrationsFS()
	switch args[0] {
	case "up":
		err = d.MigrateUp(fsys)
	case "down":
		err = d.MigrateDown(fsys)
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q; %s", args[0], migrateUsage)
	}
	if err != nil {
		return err
	}

	version, dirty, err := d.MigrateVersion(fsys)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	fmt.Fprintf(w, "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}
