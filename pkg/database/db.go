package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/huandu/go-sqlbuilder"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"reviewdash/pkg/utils"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// ConfigFrom maps the process config onto the store config.
func ConfigFrom(c utils.DatabaseConfig) Config {
	return Config{Driver: c.Driver, DSN: c.DSN, MaxOpenConns: c.MaxOpenConns}
}

// Flavor returns the SQL dialect used by go-sqlbuilder for the driver.
func Flavor(driver string) sqlbuilder.Flavor {
	if driver == DriverPostgres {
		return sqlbuilder.PostgreSQL
	}
	return sqlbuilder.SQLite
}

func ensureDataDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Open connects to the configured store. SQLite files get their parent
// directory created and WAL enabled; Postgres DSNs are passed to pgx as-is.
func Open(cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return openSQLite(cfg)
	case DriverPostgres:
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openSQLite(cfg Config) (*sqlx.DB, error) {
	if err := ensureDataDir(cfg.DSN); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sqlx.Open(DriverSQLite, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func openPostgres(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverPostgres, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func MustOpen(cfg Config, logger *zap.Logger) *sqlx.DB {
	db, err := Open(cfg)
	if err != nil {
		logger.Fatal("failed to open db", zap.String("driver", cfg.Driver), zap.Error(err))
	}
	return db
}
