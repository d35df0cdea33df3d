package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/joao-fontenele/medportal/internal/messaging"
)

type fakeSource struct {
	topic    string
	payloads [][]byte
	failWith error
	handled  chan string
}

func (f *fakeSource) Topic() string { return f.topic }

func (f *fakeSource) Consume(ctx context.Context, handler messaging.HandlerFunc) error {
	for _, p := range f.payloads {
		if err := handler(ctx, p); err != nil {
			return err
		}
		f.handled <- f.topic
	}
	if f.failWith != nil {
		return f.failWith
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("stops cleanly on cancel", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		handled := make(chan string, 2)
		noop := func(context.Context, []byte) error { return nil }
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- Run(ctx, logger,
				Route{Source: &fakeSource{topic: "a", payloads: [][]byte{{}}, handled: handled}, Handler: noop},
				Route{Source: &fakeSource{topic: "b", payloads: [][]byte{{}}, handled: handled}, Handler: noop},
			)
		}()

		got := []string{<-handled, <-handled}
		assert.ElementsMatch(t, []string{"a", "b"}, got)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})

	t.Run("one failing source stops the rest", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		boom := errors.New("broker gone")
		err := Run(context.Background(), logger,
			Route{Source: &fakeSource{topic: "a", failWith: boom, handled: make(chan string)}},
			Route{Source: &fakeSource{topic: "b", handled: make(chan string)}},
		)

		assert.ErrorIs(t, err, boom)
	})
}
