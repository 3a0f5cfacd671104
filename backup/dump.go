// Package backup dumps the database, copies the dump to an external location
// and runs both every day.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/hidenkeys/aloes/config"
)

// Dumper writes a full copy of the database to dest.
type Dumper interface {
	Dump(ctx context.Context, dest string) error
	// Ext is the file extension of the dumps, dot included.
	Ext() string
}

// SQLiteDumper copies a live sqlite database with VACUUM INTO, which gives a
// consistent snapshot without stopping writers.
type SQLiteDumper struct {
	DB *sql.DB
}

func (d *SQLiteDumper) Dump(ctx context.Context, dest string) error {
	if _, err := d.DB.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

func (d *SQLiteDumper) Ext() string { return ".sqlite3" }

// PostgresDumper runs pg_dump against the configured database.
type PostgresDumper struct {
	Config config.DatabaseConfig
	// Command defaults to pg_dump from PATH.
	Command string
}

func (d *PostgresDumper) args(dest string) []string {
	return []string{
		"--host", d.Config.Host,
		"--port", strconv.Itoa(d.Config.Port),
		"--username", d.Config.User,
		"--dbname", d.Config.Name,
		"--format", "plain",
		"--no-owner",
		"--file", dest,
	}
}

func (d *PostgresDumper) Dump(ctx context.Context, dest string) error {
	command := d.Command
	if command == "" {
		command = "pg_dump"
	}
	cmd := exec.CommandContext(ctx, command, d.args(dest)...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+d.Config.Password)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_dump: %w: %s", err, out)
	}
	return nil
}

func (d *PostgresDumper) Ext() string { return ".sql" }

// NewDumper picks the dumper matching the database driver.
func NewDumper(cfg config.DatabaseConfig, db *sql.DB) Dumper {
	if cfg.Driver == "postgres" {
		return &PostgresDumper{Config: cfg}
	}
	return &SQLiteDumper{DB: db}
}
