package catalog

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/joao-fontenele/medportal/internal/domain"
)

type seedFile struct {
	Products []domain.Product `yaml:"products"`
}

// LoadSeed parses a YAML catalog and validates every product in it.
func LoadSeed(r io.Reader) ([]domain.Product, error) {
	var f seedFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Products))
	for i := range f.Products {
		p := &f.Products[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i+1, p.SKU, err)
		}
		if _, ok := seen[p.SKU]; ok {
			return nil, fmt.Errorf("product %d: %w: %s", i+1, ErrDuplicateSKU, p.SKU)
		}
		seen[p.SKU] = struct{}{}
		p.SortTiers()
	}

	return f.Products, nil
}

type SeedStore interface {
	UpsertBySKU(ctx context.Context, p *domain.Product) error
}

// Seed writes products keyed by SKU, so running it twice leaves one copy of each.
func Seed(ctx context.Context, store SeedStore, products []domain.Product) error {
	for i := range products {
		if err := store.UpsertBySKU(ctx, &products[i]); err != nil {
			return err
		}
	}
	return nil
}
