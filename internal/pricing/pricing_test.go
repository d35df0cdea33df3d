package pricing

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medportal/internal/domain"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func tier(minQty int, price int64) domain.PriceTier {
	return domain.PriceTier{MinQuantity: minQty, UnitPrice: d(price)}
}

func TestResolveUnitPrice(t *testing.T) {
	tiers := []domain.PriceTier{tier(5, 9000), tier(10, 8000)}

	tests := []struct {
		name     string
		tiers    []domain.PriceTier
		quantity int
		want     int64
	}{
		{name: "between breakpoints", tiers: tiers, quantity: 7, want: 9000},
		{name: "above highest breakpoint", tiers: tiers, quantity: 12, want: 8000},
		{name: "below lowest breakpoint", tiers: tiers, quantity: 1, want: 10000},
		{name: "exactly on breakpoint", tiers: tiers, quantity: 10, want: 8000},
		{name: "exactly on first breakpoint", tiers: tiers, quantity: 5, want: 9000},
		{name: "no tiers", tiers: nil, quantity: 100, want: 10000},
		{name: "unsorted input", tiers: []domain.PriceTier{tier(10, 8000), tier(2, 9500), tier(5, 9000)}, quantity: 3, want: 9500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveUnitPrice(d(10000), tt.tiers, tt.quantity)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %d", got, tt.want)
		})
	}
}

func TestResolveUnitPrice_DoesNotReorderInput(t *testing.T) {
	tiers := []domain.PriceTier{tier(5, 9000), tier(10, 8000)}

	_ = ResolveUnitPrice(d(10000), tiers, 7)

	assert.Equal(t, 5, tiers[0].MinQuantity)
	assert.Equal(t, 10, tiers[1].MinQuantity)
}

func TestResolveUnitPrice_DuplicateBreakpointPicksFirstListed(t *testing.T) {
	tiers := []domain.PriceTier{tier(5, 9100), tier(5, 8900)}

	got := ResolveUnitPrice(d(10000), tiers, 6)

	assert.True(t, got.Equal(d(9100)), "got %s", got)
}

func TestResolveUnitPrice_MatchesHighestQualifyingTier(t *testing.T) {
	for i := 0; i < 200; i++ {
		base := d(int64(gofakeit.Number(1000, 500000)))

		seen := map[int]bool{}
		var tiers []domain.PriceTier
		for n := gofakeit.Number(0, 6); n > 0; n-- {
			minQty := gofakeit.Number(1, 50)
			if seen[minQty] {
				continue
			}
			seen[minQty] = true
			tiers = append(tiers, tier(minQty, int64(gofakeit.Number(100, 500000))))
		}
		quantity := gofakeit.Number(1, 60)

		want := base
		bestMin := 0
		for _, tr := range tiers {
			if tr.MinQuantity <= quantity && tr.MinQuantity > bestMin {
				want, bestMin = tr.UnitPrice, tr.MinQuantity
			}
		}

		got := ResolveUnitPrice(base, tiers, quantity)
		require.True(t, got.Equal(want), "tiers=%v quantity=%d got=%s want=%s", tiers, quantity, got, want)
	}
}

func TestApplyDiscount(t *testing.T) {
	x := d(123457)

	assert.True(t, ApplyDiscount(x, true).Equal(x.Mul(decimal.RequireFromString("0.95"))))
	assert.True(t, ApplyDiscount(x, false).Equal(x))
	assert.True(t, ApplyDiscount(d(900000), true).Equal(d(855000)))
}

func TestComputeTotal(t *testing.T) {
	products := map[string]domain.Product{
		"A": {ID: "A", BasePrice: d(10000), Tiers: []domain.PriceTier{tier(5, 9000)}},
		"B": {ID: "B", BasePrice: d(450000)},
	}

	t.Run("tiered line", func(t *testing.T) {
		got := ComputeTotal([]domain.CartLine{{ProductID: "A", Quantity: 7}}, products)
		assert.True(t, got.Equal(d(63000)), "got %s", got)
	})

	t.Run("subscription line", func(t *testing.T) {
		got := ComputeTotal([]domain.CartLine{{ProductID: "B", Quantity: 2, Subscription: true}}, products)
		assert.True(t, got.Equal(d(855000)), "got %s", got)
	})

	t.Run("sums lines", func(t *testing.T) {
		lines := []domain.CartLine{
			{ProductID: "A", Quantity: 7},
			{ProductID: "B", Quantity: 2, Subscription: true},
			{ProductID: "A", Quantity: 1, Subscription: true},
		}
		got := ComputeTotal(lines, products)
		assert.True(t, got.Equal(d(63000+855000+9500)), "got %s", got)
	})

	t.Run("skips unknown products", func(t *testing.T) {
		lines := []domain.CartLine{
			{ProductID: "A", Quantity: 7},
			{ProductID: "missing", Quantity: 3},
		}
		got := ComputeTotal(lines, products)
		assert.True(t, got.Equal(d(63000)), "got %s", got)
	})

	t.Run("empty cart", func(t *testing.T) {
		assert.True(t, ComputeTotal(nil, products).IsZero())
	})

	t.Run("same input same result", func(t *testing.T) {
		lines := []domain.CartLine{{ProductID: "A", Quantity: 12}, {ProductID: "B", Quantity: 1, Subscription: true}}
		first := ComputeTotal(lines, products)
		second := ComputeTotal(lines, products)
		assert.True(t, first.Equal(second))
	})
}

func TestCalculator_Quote(t *testing.T) {
	products := map[string]domain.Product{
		"A": {ID: "A", SKU: "SKU-A", Name: "Pump", BasePrice: d(10000), Tiers: []domain.PriceTier{tier(5, 9000)}},
		"B": {ID: "B", SKU: "SKU-B", Name: "Monitor", BasePrice: d(450000)},
	}
	lines := []domain.CartLine{
		{ProductID: "A", Quantity: 7},
		{ProductID: "ghost", Quantity: 1},
		{ProductID: "B", Quantity: 2, Subscription: true},
	}

	t.Run("lenient skips unknown product", func(t *testing.T) {
		q, err := NewCalculator(ModeLenient).Quote(lines, products)
		require.NoError(t, err)

		assert.Equal(t, []string{"ghost"}, q.Skipped)
		require.Len(t, q.Lines, 2)
		assert.True(t, q.Lines[0].UnitPrice.Equal(d(9000)))
		assert.True(t, q.Lines[0].LineTotal.Equal(d(63000)))
		assert.Equal(t, "SKU-A", q.Lines[0].SKU)
		assert.True(t, q.Lines[1].UnitPrice.Equal(d(450000)))
		assert.True(t, q.Lines[1].LineTotal.Equal(d(855000)))
		assert.True(t, q.Lines[1].Subscription)
		assert.True(t, q.Total.Equal(d(918000)))
		assert.True(t, q.Total.Equal(ComputeTotal(lines, products)))
	})

	t.Run("strict rejects unknown product", func(t *testing.T) {
		_, err := NewCalculator(ModeStrict).Quote(lines, products)
		assert.ErrorIs(t, err, ErrUnknownProduct)
	})

	t.Run("rejects non positive quantity", func(t *testing.T) {
		_, err := NewCalculator(ModeLenient).Quote([]domain.CartLine{{ProductID: "A", Quantity: 0}}, products)
		assert.Error(t, err)
	})
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLenient, m)

	m, err = ParseMode("Strict")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)

	_, err = ParseMode("loose")
	assert.Error(t, err)
}
