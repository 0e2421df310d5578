// Package database wires the Postgres connection pool and runs schema
// migrations, adapted from the platform's own database bootstrap.
package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the Postgres connection pool. Serialization of logical
// operations against it is the responsibility of internal/dbguard, layered
// on top at call sites rather than inside the pool itself.
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database connection parameters.
type Config struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"dbname"`
	ApplicationName string `mapstructure:"application_name"`
	MigrationsPath  string `mapstructure:"migrationspath"`
}

func dsn(cfg Config) string {
	encodedPassword := url.QueryEscape(cfg.Password)
	d := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, encodedPassword, cfg.Host, cfg.Port, cfg.Name)
	if cfg.ApplicationName != "" {
		d += "&application_name=" + url.QueryEscape(cfg.ApplicationName)
	}
	return d
}

// New connects to Postgres and runs migrations from cfg.MigrationsPath, if set.
func New(cfg Config) (*DB, error) {
	d := dsn(cfg)

	poolCfg, err := pgxpool.ParseConfig(d)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if cfg.MigrationsPath != "" {
		m, err := migrate.New("file://"+cfg.MigrationsPath, d)
		if err != nil {
			return nil, fmt.Errorf("creating migration instance: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return &DB{Pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
