// Package main implements the migrate command, which applies the embedded
// schema migrations of the PostgreSQL session store.
//
// Usage:
//
//	migrate -command up
//	migrate -command status -config ./config.yaml
//
// The database URL is read from SPAREP_DATABASE_URL or the database.url key of
// the configuration file. A .env file in the working directory is loaded first
// if present.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/joho/godotenv"
	"github.com/smibbs/sparep/internal/config"
	"github.com/smibbs/sparep/internal/platform/logger"
	"github.com/smibbs/sparep/internal/platform/postgres"
	"github.com/smibbs/sparep/internal/redact"
)

// connectTimeout bounds the initial ping of the database.
const connectTimeout = 10 * time.Second

func main() {
	command := flag.String("command", postgres.MigrateUp,
		"migration command: up, down, reset, status or version")
	configPath := flag.String("config", "", "path to a YAML config file (default: ./config.yaml if present)")
	flag.Parse()

	if err := run(*command, *configPath); err != nil {
		log.Fatalf("migrate: %s", redact.Error(err))
	}
}

func run(command, configPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is empty: set %s_DATABASE_URL or database.url", config.EnvPrefix)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			l.Error("failed to close database connection", slog.String("error", redact.Error(err)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	l.Info("running migrations", slog.String("command", command))
	return postgres.Migrate(context.Background(), db, command, l)
}
