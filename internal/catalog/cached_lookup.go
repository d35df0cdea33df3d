package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/medportal/internal/cache"
	"github.com/joao-fontenele/medportal/internal/domain"
)

type ProductFetcher interface {
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// CachedLookup is a read-through cache in front of a ProductFetcher. Cached
// prices may lag the catalog by up to ttl; orders snapshot whatever price
// the lookup returned at checkout.
type CachedLookup struct {
	next    ProductFetcher
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
	lookups metric.Int64Counter
}

func NewCachedLookup(next ProductFetcher, c cache.Cache, ttl time.Duration, logger *slog.Logger) (*CachedLookup, error) {
	lookups, err := otel.Meter("catalog").Int64Counter("catalog.cache.lookups",
		metric.WithDescription("Product lookups served by the cache, by result"),
	)
	if err != nil {
		return nil, err
	}

	return &CachedLookup{
		next:    next,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
		lookups: lookups,
	}, nil
}

func (l *CachedLookup) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(ids))
	var misses []string

	for _, id := range lo.Uniq(ids) {
		raw, err := l.cache.Get(ctx, l.key(id))
		if err != nil {
			l.logger.WarnContext(ctx, "product cache read failed", "error", err, "product_id", id)
		}

		var p domain.Product
		if raw == "" || json.Unmarshal([]byte(raw), &p) != nil {
			misses = append(misses, id)
			continue
		}
		products[id] = p
	}

	l.lookups.Add(ctx, int64(len(products)), metric.WithAttributes(attribute.String("result", "hit")))
	l.lookups.Add(ctx, int64(len(misses)), metric.WithAttributes(attribute.String("result", "miss")))

	if len(misses) == 0 {
		return products, nil
	}

	fetched, err := l.next.GetProducts(ctx, misses)
	if err != nil {
		return nil, err
	}

	for id, p := range fetched {
		products[id] = p

		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		if err := l.cache.Set(ctx, l.key(id), data, l.ttl); err != nil {
			l.logger.WarnContext(ctx, "product cache write failed", "error", err, "product_id", id)
		}
	}

	return products, nil
}

func (l *CachedLookup) key(id string) string {
	return l.cache.GenerateKey("product", id)
}
