// Package db is the relational storage layer: connection management, forward-only
// migrations, and one repository file per entity family.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	DB            *sql.DB
	currentDriver string
)

type Config struct {
	Driver      string
	DatabaseURL string
}

func Connect(cfg Config) error {
	var dsn string
	switch cfg.Driver {
	case "sqlite":
		dsn = cfg.DatabaseURL
		if dsn == "" {
			dsn = ":memory:"
		}
	default:
		dsn = cfg.DatabaseURL
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	DB = conn
	currentDriver = cfg.Driver

	return nil
}

func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

func GetDB() *sql.DB {
	return DB
}

func IsSQLite() bool {
	return currentDriver == "sqlite"
}
