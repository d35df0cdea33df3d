package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)

type OrderCreatedEvent struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	Lines         []OrderLine     `json:"lines"`
	Total         decimal.Decimal `json:"total"`
	Timestamp     time.Time       `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	CustomerID     string      `json:"customer_id"`
	CustomerEmail  string      `json:"customer_email"`
	From           OrderStatus `json:"from"`
	To             OrderStatus `json:"to"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
