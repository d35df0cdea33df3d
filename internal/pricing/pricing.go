// Package pricing turns cart lines into money: tier resolution, the
// subscription discount and cart totals.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medportal/internal/domain"
)

// SubscriptionDiscount is the multiplier applied to recurring lines (5% off).
var SubscriptionDiscount = decimal.RequireFromString("0.95")

var ErrUnknownProduct = errors.New("unknown product")

// ResolveUnitPrice returns the unit price of the highest tier whose minimum
// quantity is at most quantity, or basePrice when no tier qualifies.
// Among tiers sharing a minimum quantity the one listed first wins.
func ResolveUnitPrice(basePrice decimal.Decimal, tiers []domain.PriceTier, quantity int) decimal.Decimal {
	sorted := make([]domain.PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinQuantity > sorted[j].MinQuantity
	})

	for _, tier := range sorted {
		if tier.MinQuantity <= quantity {
			return tier.UnitPrice
		}
	}
	return basePrice
}

// ApplyDiscount multiplies lineTotal by SubscriptionDiscount for subscription
// lines and returns it unchanged otherwise.
func ApplyDiscount(lineTotal decimal.Decimal, isSubscription bool) decimal.Decimal {
	if isSubscription {
		return lineTotal.Mul(SubscriptionDiscount)
	}
	return lineTotal
}

// LineTotal prices a single line of quantity units of p.
func LineTotal(p domain.Product, quantity int, isSubscription bool) (unitPrice, total decimal.Decimal) {
	unitPrice = ResolveUnitPrice(p.BasePrice, p.Tiers, quantity)
	total = ApplyDiscount(unitPrice, isSubscription).Mul(decimal.NewFromInt(int64(quantity)))
	return unitPrice, total
}

// ComputeTotal sums the priced lines. Lines whose product is missing from
// products are skipped.
func ComputeTotal(lines []domain.CartLine, products map[string]domain.Product) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			continue
		}
		_, lineTotal := LineTotal(p, line.Quantity, line.Subscription)
		total = total.Add(lineTotal)
	}
	return total
}

// Mode selects what happens to cart lines that reference unknown products.
type Mode string

const (
	ModeLenient Mode = "lenient"
	ModeStrict  Mode = "strict"
)

// ParseMode reads PRICING_MODE values case-insensitively; empty means lenient.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeLenient:
		return ModeLenient, nil
	case ModeStrict:
		return ModeStrict, nil
	}
	return "", fmt.Errorf("invalid pricing mode %q", s)
}

// Quote is a priced checkout: snapshot lines, the ids of skipped products
// (lenient mode only) and the sum of the line totals.
type Quote struct {
	Lines   []domain.OrderLine
	Skipped []string
	Total   decimal.Decimal
}

// Calculator prices checkouts under a fixed Mode.
type Calculator struct {
	mode Mode
}

func NewCalculator(mode Mode) *Calculator {
	return &Calculator{mode: mode}
}

func (c *Calculator) Mode() Mode {
	return c.mode
}

// Quote prices lines against products and snapshots the result as order
// lines. In strict mode an unknown product fails the whole quote.
func (c *Calculator) Quote(lines []domain.CartLine, products map[string]domain.Product) (Quote, error) {
	q := Quote{Total: decimal.Zero}

	for _, line := range lines {
		if line.Quantity < 1 {
			return Quote{}, fmt.Errorf("product %s: quantity must be positive", line.ProductID)
		}

		p, ok := products[line.ProductID]
		if !ok {
			if c.mode == ModeStrict {
				return Quote{}, fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductID)
			}
			q.Skipped = append(q.Skipped, line.ProductID)
			continue
		}

		unitPrice, lineTotal := LineTotal(p, line.Quantity, line.Subscription)
		q.Lines = append(q.Lines, domain.OrderLine{
			ProductID:    p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			Quantity:     line.Quantity,
			UnitPrice:    unitPrice,
			Subscription: line.Subscription,
			LineTotal:    lineTotal,
		})
		q.Total = q.Total.Add(lineTotal)
	}

	return q, nil
}
