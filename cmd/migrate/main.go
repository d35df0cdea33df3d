package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joao-fontenele/medportal/internal/telemetry"
)

const usage = "usage: migrate [-steps N] <up|down|version|force VERSION>"

func main() {
	logger := telemetry.NewLogger(os.Stdout, "migrate")

	steps := flag.Int("steps", 0, "number of migrations to apply or roll back; 0 applies all pending on up and one on down")
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		logger.Error(usage)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.New(migrationsPath, postgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	if err := run(m, logger, args, *steps); err != nil {
		logger.Error("migrate failed", slog.String("command", args[0]), slog.String("error", err.Error()))
		_, _ = m.Close()
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, logger *slog.Logger, args []string, steps int) error {
	switch args[0] {
	case "up":
		var err error
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("migrations applied", slog.Int("steps", steps))

	case "down":
		if steps <= 0 {
			steps = 1
		}
		err := m.Steps(-steps)
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("migrations rolled back", slog.Int("steps", steps))

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	case "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parse version %q: %w", args[1], err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Warn("migration version forced", slog.Int("version", version))

	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	return nil
}
