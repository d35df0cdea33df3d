package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StatusSummary struct {
	Status  OrderStatus     `json:"status"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Dashboard aggregates orders created in [From, To). Revenue excludes cancelled orders.
type Dashboard struct {
	From          *time.Time                 `json:"from,omitempty"`
	To            *time.Time                 `json:"to,omitempty"`
	TotalOrders   int                        `json:"total_orders"`
	Revenue       decimal.Decimal            `json:"revenue"`
	ByStatus      []StatusSummary            `json:"by_status"`
	Subscriptions map[SubscriptionStatus]int `json:"subscriptions"`
}
