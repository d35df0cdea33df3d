package main

import (
	"context"
	"flag"
	"os"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/medportal/internal/catalog"
	"github.com/joao-fontenele/medportal/internal/telemetry"
)

func main() {
	logger := telemetry.NewLogger(os.Stdout, "seed")

	path := flag.String("file", "seed/catalog.yaml", "YAML catalog to load")
	flag.Parse()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	f, err := os.Open(*path)
	if err != nil {
		logger.Error("failed to open seed file", "error", err, "path", *path)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	products, err := catalog.LoadSeed(f)
	if err != nil {
		logger.Error("failed to load seed file", "error", err, "path", *path)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(postgresURL, "catalog")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := catalog.Seed(context.Background(), catalog.NewProductRepository(db), products); err != nil {
		logger.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}

	logger.Info("catalog seeded", "products", len(products), "path", *path)
}
