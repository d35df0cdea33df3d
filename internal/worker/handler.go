package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/email"
)

type StockReserver interface {
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// NotificationHandler reacts to order events. It reserves stock and tells
// people what happened; order status is only ever changed by an admin.
type NotificationHandler struct {
	stock      StockReserver
	mailer     Mailer
	adminEmail string
	currency   currency.Unit
	logger     *slog.Logger
}

func NewNotificationHandler(stock StockReserver, mailer Mailer, adminEmail string, unit currency.Unit, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		stock:      stock,
		mailer:     mailer,
		adminEmail: adminEmail,
		currency:   unit,
		logger:     logger,
	}
}

type reservedLine struct {
	ProductID string
	Quantity  int
}

func (h *NotificationHandler) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.InfoContext(ctx, "processing order created event", "order_id", event.OrderID, "customer_id", event.CustomerID)

	reserved, err := h.reserveStock(ctx, event.Lines)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to reserve stock", "error", err, "order_id", event.OrderID)
		h.releaseStock(ctx, reserved)

		if err := h.alertAdmin(ctx, event, err); err != nil {
			h.logger.ErrorContext(ctx, "failed to alert admin", "error", err, "order_id", event.OrderID)
		}
	}

	if err := h.sendToCustomer(ctx, event.CustomerEmail, "Order received: "+event.OrderNumber, h.orderReceivedBody(event)); err != nil {
		return fmt.Errorf("send order received email: %w", err)
	}

	h.logger.InfoContext(ctx, "order created event processed", "order_id", event.OrderID, "stock_reserved", err == nil)
	return nil
}

func (h *NotificationHandler) HandleStatusChanged(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order status changed event: %w", err)
	}

	h.logger.InfoContext(ctx, "processing order status changed event", "order_id", event.OrderID, "from", event.From, "to", event.To)

	body := fmt.Sprintf("Your order %s is now %s.", event.OrderNumber, event.To)
	if event.To == domain.OrderStatusShipping && event.TrackingNumber != "" {
		body += " Tracking number: " + event.TrackingNumber + "."
	}

	if err := h.sendToCustomer(ctx, event.CustomerEmail, fmt.Sprintf("Order %s: %s", event.OrderNumber, event.To), body); err != nil {
		return fmt.Errorf("send status email: %w", err)
	}

	return nil
}

func (h *NotificationHandler) reserveStock(ctx context.Context, lines []domain.OrderLine) ([]reservedLine, error) {
	var reserved []reservedLine

	for _, line := range lines {
		if err := h.stock.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			return reserved, fmt.Errorf("reserve %d of %s: %w", line.Quantity, line.SKU, err)
		}
		reserved = append(reserved, reservedLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	return reserved, nil
}

func (h *NotificationHandler) releaseStock(ctx context.Context, reserved []reservedLine) {
	for _, line := range reserved {
		if err := h.stock.Release(ctx, line.ProductID, line.Quantity); err != nil {
			h.logger.ErrorContext(ctx, "failed to release stock", "error", err, "product_id", line.ProductID, "quantity", line.Quantity)
		}
	}
}

func (h *NotificationHandler) alertAdmin(ctx context.Context, event domain.OrderCreatedEvent, cause error) error {
	if h.adminEmail == "" {
		return errors.New("no admin address configured")
	}

	return h.mailer.Send(ctx, email.Message{
		To:      h.adminEmail,
		Subject: "Stock shortage: " + event.OrderNumber,
		Body:    fmt.Sprintf("Order %s (customer %s) could not be reserved: %v", event.OrderNumber, event.CustomerID, cause),
	})
}

func (h *NotificationHandler) sendToCustomer(ctx context.Context, to, subject, body string) error {
	if to == "" {
		h.logger.WarnContext(ctx, "no customer email on event, skipping", "subject", subject)
		return nil
	}

	return h.mailer.Send(ctx, email.Message{To: to, Subject: subject, Body: body})
}

func (h *NotificationHandler) orderReceivedBody(event domain.OrderCreatedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "We received your order %s.\n\n", event.OrderNumber)
	for _, line := range event.Lines {
		fmt.Fprintf(&b, "%s x%d  %s\n", line.Name, line.Quantity, h.formatAmount(line.LineTotal))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", h.formatAmount(event.Total))
	return b.String()
}

func (h *NotificationHandler) formatAmount(amount decimal.Decimal) string {
	scale, _ := currency.Standard.Rounding(h.currency)
	return h.currency.String() + " " + amount.StringFixed(int32(scale))
}
