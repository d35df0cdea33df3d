package orders

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/medportal/internal/domain"
)

type metrics struct {
	created             metric.Int64Counter
	value               metric.Float64Histogram
	statusChanges       metric.Int64Counter
	subscriptionChanges metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter("orders")

	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed at checkout"),
	)
	if err != nil {
		return nil, err
	}

	value, err := meter.Float64Histogram("orders.value",
		metric.WithDescription("Order totals at checkout"),
	)
	if err != nil {
		return nil, err
	}

	statusChanges, err := meter.Int64Counter("orders.status_changes",
		metric.WithDescription("Order status updates, by target status"),
	)
	if err != nil {
		return nil, err
	}

	subscriptionChanges, err := meter.Int64Counter("subscriptions.status_changes",
		metric.WithDescription("Subscription status updates, by target status"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		created:             created,
		value:               value,
		statusChanges:       statusChanges,
		subscriptionChanges: subscriptionChanges,
	}, nil
}

func (m *metrics) orderCreated(ctx context.Context, total decimal.Decimal, subscription bool) {
	attrs := metric.WithAttributes(attribute.Bool("subscription", subscription))
	m.created.Add(ctx, 1, attrs)
	m.value.Record(ctx, total.InexactFloat64(), attrs)
}

func (m *metrics) orderStatusChanged(ctx context.Context, from, to domain.OrderStatus) {
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *metrics) subscriptionStatusChanged(ctx context.Context, to domain.SubscriptionStatus) {
	m.subscriptionChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(to))))
}
