//go:build integration

package orders

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/testsupport"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func fakeOrder(customerID string, createdAt time.Time, lines ...domain.OrderLine) *domain.Order {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return &domain.Order{
		CustomerID:      customerID,
		CustomerEmail:   gofakeit.Email(),
		Lines:           lines,
		Total:           total,
		PaymentMethod:   "card",
		DeliveryAddress: gofakeit.Street(),
		Status:          domain.OrderStatusPending,
		CreatedAt:       createdAt.UTC().Truncate(time.Microsecond),
	}
}

func fakeLine(quantity int, unitPrice int64, subscription bool) domain.OrderLine {
	unit := decimal.NewFromInt(unitPrice)
	total := unit.Mul(decimal.NewFromInt(int64(quantity)))
	if subscription {
		total = total.Mul(decimal.RequireFromString("0.95"))
	}
	return domain.OrderLine{
		ProductID:    uuid.NewString(),
		SKU:          gofakeit.Regex("[A-Z]{3}-[0-9]{4}"),
		Name:         gofakeit.ProductName(),
		Quantity:     quantity,
		UnitPrice:    unit,
		Subscription: subscription,
		LineTotal:    total,
	}
}

func TestRepositories(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := testsupport.DB(t, testsupport.SetupPostgres(ctx, t), "orders")
	orderRepo := NewOrderRepository(db)
	cartRepo := NewCartRepository(db)
	subRepo := NewSubscriptionRepository(db)

	day := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	t.Run("cart lines merge on add", func(t *testing.T) {
		productID := uuid.NewString()
		require.NoError(t, cartRepo.AddLine(ctx, "c1", domain.CartLine{ProductID: productID, Quantity: 2}))
		require.NoError(t, cartRepo.AddLine(ctx, "c1", domain.CartLine{ProductID: productID, Quantity: 3, Subscription: true}))

		cart, err := cartRepo.Get(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, cart.Lines, 1)
		assert.Equal(t, 5, cart.Lines[0].Quantity)
		assert.True(t, cart.Lines[0].Subscription)

		found, err := cartRepo.UpdateLine(ctx, "c1", productID, 1, nil)
		require.NoError(t, err)
		assert.True(t, found)

		cart, err = cartRepo.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, cart.Lines[0].Quantity)
		assert.True(t, cart.Lines[0].Subscription)

		found, err = cartRepo.UpdateLine(ctx, "c1", uuid.NewString(), 1, nil)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("create persists snapshot lines, subscription and clears cart", func(t *testing.T) {
		order := fakeOrder("c1", day, fakeLine(7, 9000, false), fakeLine(2, 450000, true))
		next := day.AddDate(0, 1, 0)
		sub := &domain.Subscription{Cycle: "1 month", NextDelivery: &next}

		require.NoError(t, orderRepo.Create(ctx, order, sub, true))
		assert.NotEmpty(t, order.ID)
		assert.Regexp(t, `^ORD-20261017-090000-[0-9A-F]{4}$`, order.OrderNumber)
		assert.Equal(t, sub.ID, order.SubscriptionID)

		got, err := orderRepo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		if diff := cmp.Diff(order.Lines, got.Lines, decimalEqual); diff != "" {
			t.Errorf("lines mismatch (-want +got):\n%s", diff)
		}
		assert.True(t, order.Total.Equal(got.Total))
		assert.Equal(t, sub.ID, got.SubscriptionID)
		assert.True(t, order.CreatedAt.Equal(got.CreatedAt))

		cart, err := cartRepo.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, cart.Lines)

		storedSub, err := subRepo.GetByID(ctx, sub.ID)
		require.NoError(t, err)
		require.NotNil(t, storedSub)
		assert.Equal(t, domain.SubscriptionStatusActive, storedSub.Status)
		assert.Equal(t, order.ID, storedSub.OrderID)
		require.NotNil(t, storedSub.NextDelivery)
		assert.True(t, next.Equal(*storedSub.NextDelivery))
	})

	t.Run("create without lines fails", func(t *testing.T) {
		assert.Error(t, orderRepo.Create(ctx, fakeOrder("c1", day), nil, false))
	})

	t.Run("list filters and status updates", func(t *testing.T) {
		older := fakeOrder("c2", day.AddDate(0, 0, -10), fakeLine(1, 1000, false))
		require.NoError(t, orderRepo.Create(ctx, older, nil, false))
		newer := fakeOrder("c2", day.AddDate(0, 0, 1), fakeLine(1, 2000, false))
		require.NoError(t, orderRepo.Create(ctx, newer, nil, false))

		tracking := "CJ-" + gofakeit.DigitN(10)
		updated, err := orderRepo.UpdateStatus(ctx, newer.ID, domain.OrderStatusPending, domain.OrderStatusShipping, &tracking)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, domain.OrderStatusShipping, updated.Status)
		assert.Equal(t, tracking, updated.TrackingNumber)

		// A writer that still believes the order is pending loses.
		stale, err := orderRepo.UpdateStatus(ctx, newer.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, nil)
		require.ErrorIs(t, err, domain.ErrStatusChanged)
		assert.Nil(t, stale)

		updated, err = orderRepo.UpdateStatus(ctx, newer.ID, domain.OrderStatusShipping, domain.OrderStatusDelivered, nil)
		require.NoError(t, err)
		assert.Equal(t, tracking, updated.TrackingNumber)

		missing, err := orderRepo.UpdateStatus(ctx, uuid.NewString(), domain.OrderStatusPending, domain.OrderStatusDelivered, nil)
		require.NoError(t, err)
		assert.Nil(t, missing)

		c2, err := orderRepo.List(ctx, domain.OrderFilter{CustomerID: "c2"})
		require.NoError(t, err)
		require.Len(t, c2, 2)
		assert.Equal(t, newer.ID, c2[0].ID)
		assert.Len(t, c2[0].Lines, 1)

		from := day.AddDate(0, 0, -1)
		recent, err := orderRepo.List(ctx, domain.OrderFilter{From: &from})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		delivered, err := orderRepo.List(ctx, domain.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled}})
		require.NoError(t, err)
		require.Len(t, delivered, 1)
		assert.Equal(t, newer.ID, delivered[0].ID)

		_, err = orderRepo.List(ctx, domain.OrderFilter{From: &day, To: &from})
		assert.Error(t, err)
	})

	t.Run("dashboard", func(t *testing.T) {
		d, err := orderRepo.Dashboard(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, d.TotalOrders)
		assert.Equal(t, 1, d.Subscriptions[domain.SubscriptionStatusActive])

		want := decimal.NewFromInt(63000 + 855000 + 1000 + 2000)
		assert.True(t, want.Equal(d.Revenue), d.Revenue.String())
	})

	t.Run("subscription status and schedule", func(t *testing.T) {
		subs, err := subRepo.List(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		id := subs[0].ID

		updated, err := subRepo.UpdateStatus(ctx, id, domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusPaused, updated.Status)

		_, err = subRepo.UpdateStatus(ctx, id, domain.SubscriptionStatusPaused, domain.SubscriptionStatusCancelled)
		require.NoError(t, err)

		// A resume checked against the earlier "paused" read must not revive it.
		_, err = subRepo.UpdateStatus(ctx, id, domain.SubscriptionStatusPaused, domain.SubscriptionStatusActive)
		require.ErrorIs(t, err, domain.ErrStatusChanged)

		stored, err := subRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusCancelled, stored.Status)

		missing, err := subRepo.UpdateStatus(ctx, uuid.NewString(), domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused)
		require.NoError(t, err)
		assert.Nil(t, missing)

		count := 4
		updated, err = subRepo.UpdateSchedule(ctx, id, domain.SubscriptionSchedule{DeliveryCount: &count})
		require.NoError(t, err)
		assert.Equal(t, 4, updated.DeliveryCount)
		assert.NotNil(t, updated.NextDelivery)

		none, err := subRepo.List(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
