// Package migrations holds the SQL schema, applied with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Command is a goose command supported by Run.
type Command string

const (
	CommandUp      Command = "up"
	CommandDown    Command = "down"
	CommandStatus  Command = "status"
	CommandVersion Command = "version"
)

// dialect maps a database.driver value to the goose dialect and migration directory.
func dialect(driver string) (string, string, error) {
	switch driver {
	case "sqlite", "":
		return "sqlite3", "sqlite", nil
	case "postgres":
		return "postgres", "postgres", nil
	default:
		return "", "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}

// Run executes a goose command against db. A nil logger silences goose output.
func Run(db *sql.DB, driver string, cmd Command, log goose.Logger) error {
	gooseDialect, dir, err := dialect(driver)
	if err != nil {
		return err
	}

	goose.SetBaseFS(files)
	if log != nil {
		goose.SetLogger(log)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	switch cmd {
	case CommandUp:
		err = goose.Up(db, dir)
	case CommandDown:
		err = goose.Down(db, dir)
	case CommandStatus:
		err = goose.Status(db, dir)
	case CommandVersion:
		err = goose.Version(db, dir)
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", cmd, err)
	}
	return nil
}

// Up applies all pending migrations.
func Up(db *sql.DB, driver string, log goose.Logger) error {
	return Run(db, driver, CommandUp, log)
}
