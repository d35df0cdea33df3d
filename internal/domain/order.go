package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusChanged means the stored status no longer matches the one a
	// transition was checked against.
	ErrStatusChanged = errors.New("status was changed by another request")
)

type OrderStatus string

// remember to add new statuses to validOrderStatuses and orderTransitions
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:   {},
	OrderStatusConfirmed: {},
	OrderStatusShipping:  {},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:  {OrderStatusDelivered, OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next follows s in the forward lifecycle.
// Setting the current status again is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusPolicy decides whether an admin may move an order between two statuses.
type StatusPolicy string

const (
	StatusPolicyPermissive StatusPolicy = "permissive"
	StatusPolicyStrict     StatusPolicy = "strict"
)

func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch StatusPolicy(strings.ToLower(s)) {
	case "", StatusPolicyPermissive:
		return StatusPolicyPermissive, nil
	case StatusPolicyStrict:
		return StatusPolicyStrict, nil
	}
	return "", fmt.Errorf("invalid status policy %q", s)
}

func (p StatusPolicy) Check(from, to OrderStatus) error {
	if p == StatusPolicyStrict && !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// OrderLine is a snapshot of a cart line at checkout time.
type OrderLine struct {
	ProductID    string          `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subscription bool            `json:"subscription"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      string          `json:"customer_id"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	Lines           []OrderLine     `json:"lines"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method"`
	DeliveryAddress string          `json:"delivery_address"`
	Status          OrderStatus     `json:"status"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	SubscriptionID  string          `json:"subscription_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (o Order) HasSubscriptionLines() bool {
	for _, l := range o.Lines {
		if l.Subscription {
			return true
		}
	}
	return false
}

// NewOrderNumber builds the human readable order number, e.g. ORD-20261017-093015-4F2A.
func NewOrderNumber(at time.Time, id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:4])
	return "ORD-" + at.UTC().Format("20060102-150405") + "-" + suffix
}

// OrderFilter has AND semantics across fields, OR semantics within Statuses.
type OrderFilter struct {
	CustomerID string
	Statuses   []OrderStatus
	From       *time.Time
	To         *time.Time
}

func (f OrderFilter) Validate() error {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return errors.New("to is before from")
	}
	return nil
}
