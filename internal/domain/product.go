package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceTier applies UnitPrice to lines ordering at least MinQuantity units.
type PriceTier struct {
	MinQuantity int             `json:"min_quantity" yaml:"min_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" yaml:"unit_price"`
}

type Product struct {
	ID        string          `json:"id" yaml:"-"`
	SKU       string          `json:"sku" yaml:"sku"`
	Name      string          `json:"name" yaml:"name"`
	Category  string          `json:"category" yaml:"category"`
	BasePrice decimal.Decimal `json:"base_price" yaml:"base_price"`
	Tiers     []PriceTier     `json:"tiers" yaml:"tiers"`
	Stock     int             `json:"stock" yaml:"stock"`
	CreatedAt time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"-"`
}

func (p Product) Validate() error {
	if p.SKU == "" {
		return errors.New("sku is empty")
	}
	if p.Name == "" {
		return errors.New("name is empty")
	}
	if !p.BasePrice.IsPositive() {
		return errors.New("base price must be positive")
	}
	if p.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return ValidateTiers(p.Tiers)
}

func ValidateTiers(tiers []PriceTier) error {
	seen := make(map[int]struct{}, len(tiers))
	for _, t := range tiers {
		if t.MinQuantity < 1 {
			return fmt.Errorf("tier min quantity %d must be at least 1", t.MinQuantity)
		}
		if !t.UnitPrice.IsPositive() {
			return fmt.Errorf("tier %d: unit price must be positive", t.MinQuantity)
		}
		if _, ok := seen[t.MinQuantity]; ok {
			return fmt.Errorf("duplicate tier for min quantity %d", t.MinQuantity)
		}
		seen[t.MinQuantity] = struct{}{}
	}
	return nil
}

// SortTiers orders tiers ascending by min quantity, the stored representation.
func (p *Product) SortTiers() {
	sort.SliceStable(p.Tiers, func(i, j int) bool {
		return p.Tiers[i].MinQuantity < p.Tiers[j].MinQuantity
	})
}

type StockLevel struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}
