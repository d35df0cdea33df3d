package worker

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/medportal/internal/messaging"
)

type Source interface {
	Topic() string
	Consume(ctx context.Context, handler messaging.HandlerFunc) error
}

type Route struct {
	Source  Source
	Handler messaging.HandlerFunc
}

// Run consumes every route until ctx is cancelled or one of them fails,
// which stops the others.
func Run(ctx context.Context, logger *slog.Logger, routes ...Route) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, route := range routes {
		g.Go(func() error {
			logger.InfoContext(ctx, "consuming", "topic", route.Source.Topic())
			err := route.Source.Consume(ctx, route.Handler)
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
