package messaging

import (
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderContentType = "content-type"
	contentTypeJSON   = "application/json"
)

var _ propagation.TextMapCarrier = (*MessageCarrier)(nil)

// MessageCarrier exposes kafka message headers to otel propagators.
// Header keys match case-insensitively.
type MessageCarrier struct {
	headers *[]kafka.Header
}

func NewMessageCarrier(msg *kafka.Message) *MessageCarrier {
	return &MessageCarrier{headers: &msg.Headers}
}

func (c *MessageCarrier) index(key string) int {
	return slices.IndexFunc(*c.headers, func(h kafka.Header) bool {
		return strings.EqualFold(h.Key, key)
	})
}

func (c *MessageCarrier) Get(key string) string {
	if i := c.index(key); i >= 0 {
		return string((*c.headers)[i].Value)
	}
	return ""
}

func (c *MessageCarrier) Set(key, value string) {
	if i := c.index(key); i >= 0 {
		(*c.headers)[i].Value = []byte(value)
		return
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *MessageCarrier) Keys() []string {
	return lo.Map(*c.headers, func(h kafka.Header, _ int) string { return h.Key })
}
