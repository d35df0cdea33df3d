//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/testsupport"
)

func TestProducerConsumerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	brokers := testsupport.SetupKafka(ctx, t)

	producer := NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	event := domain.OrderStatusChangedEvent{
		OrderID:     "order-1",
		OrderNumber: "ORD-20261017-093015-4F2A",
		From:        domain.OrderStatusConfirmed,
		To:          domain.OrderStatusShipping,
	}

	// order_id has the wrong type so the handler rejects it.
	require.NoError(t, producer.Publish(ctx, domain.TopicOrderStatusChanged, "order-0", json.RawMessage(`{"order_id":1}`)))
	require.NoError(t, producer.Publish(ctx, domain.TopicOrderStatusChanged, event.OrderID, event))

	var skipped []string
	consumer := NewConsumer(brokers, domain.TopicOrderStatusChanged, "roundtrip-test",
		WithStartOffset(kafka.FirstOffset),
		WithErrorHandler(func(_ context.Context, msg kafka.Message, _ error) error {
			skipped = append(skipped, string(msg.Key))
			return nil
		}),
	)
	defer func() { _ = consumer.Close() }()

	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	var got domain.OrderStatusChangedEvent
	err := consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
		if err := json.Unmarshal(payload, &got); err != nil {
			return err
		}
		stop()
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"order-0"}, skipped)
	assert.Equal(t, event.OrderID, got.OrderID)
	assert.Equal(t, domain.OrderStatusShipping, got.To)
}
