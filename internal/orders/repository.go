package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medportal/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	o.id, o.order_number, o.customer_id, o.customer_email, o.total, o.payment_method,
	o.delivery_address, o.status, o.tracking_number, COALESCE(s.id::text, ''), o.created_at, o.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerEmail, &o.Total, &o.PaymentMethod,
		&o.DeliveryAddress, &o.Status, &o.TrackingNumber, &o.SubscriptionID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Create persists the order, its line snapshots and, when sub is not nil, the
// subscription in one transaction. With clearCart the customer's cart is emptied too.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order, sub *domain.Subscription, clearCart bool) error {
	if len(order.Lines) == 0 {
		return errors.New("no lines in order")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New()
	order.ID = id.String()
	order.OrderNumber = domain.NewOrderNumber(order.CreatedAt, id)
	order.UpdatedAt = order.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, customer_email, total, payment_method,
			delivery_address, status, tracking_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, order.ID, order.OrderNumber, order.CustomerID, order.CustomerEmail, order.Total, order.PaymentMethod,
		order.DeliveryAddress, order.Status, order.TrackingNumber, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, sku, name, quantity, unit_price, subscription, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, order.ID, i+1, line.ProductID, line.SKU, line.Name, line.Quantity, line.UnitPrice, line.Subscription, line.LineTotal)
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", i+1, err)
		}
	}

	if sub != nil {
		sub.ID = uuid.New().String()
		sub.OrderID = order.ID
		sub.CustomerID = order.CustomerID
		sub.CreatedAt, sub.UpdatedAt = order.CreatedAt, order.CreatedAt
		if sub.Status == "" {
			sub.Status = domain.SubscriptionStatusActive
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscriptions (id, order_id, customer_id, cycle, next_delivery, delivery_count, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		`, sub.ID, sub.OrderID, sub.CustomerID, sub.Cycle, sub.NextDelivery, sub.DeliveryCount, sub.Status, sub.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		order.SubscriptionID = sub.ID
	}

	if clearCart {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE owner_id = $1`, order.CustomerID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN subscriptions s ON s.order_id = o.id
		WHERE o.id = $1
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := r.loadLines(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[id]
	if order.Lines == nil {
		order.Lines = []domain.OrderLine{}
	}

	return &order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	var statuses []string
	if len(filter.Statuses) > 0 {
		statuses = lo.Map(filter.Statuses, func(s domain.OrderStatus, _ int) string { return string(s) })
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		LEFT JOIN subscriptions s ON s.order_id = o.id
		WHERE ($1 = '' OR o.customer_id = $1)
		  AND ($2::text[] IS NULL OR o.status = ANY($2::text[]))
		  AND ($3::timestamptz IS NULL OR o.created_at >= $3)
		  AND ($4::timestamptz IS NULL OR o.created_at < $4)
		ORDER BY o.created_at DESC
	`, filter.CustomerID, pq.Array(statuses), filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return orders, nil
	}

	ids := lo.Map(orders, func(o domain.Order, _ int) string { return o.ID })
	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
		if orders[i].Lines == nil {
			orders[i].Lines = []domain.OrderLine{}
		}
	}

	return orders, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderIDs []string) (map[string][]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, sku, name, quantity, unit_price, subscription, line_total
		FROM order_lines
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, line_no
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	lines := make(map[string][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := rows.Scan(&orderID, &line.ProductID, &line.SKU, &line.Name, &line.Quantity,
			&line.UnitPrice, &line.Subscription, &line.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines[orderID] = append(lines[orderID], line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// UpdateStatus moves the order from status from to status to and, when
// trackingNumber is not nil, sets the tracking number. No transition rules are
// applied here; if the stored status is no longer from it returns
// domain.ErrStatusChanged.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, trackingNumber *string) (*domain.Order, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, tracking_number = COALESCE($2, tracking_number), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, trackingNumber, id, from)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, staleOrMissing(ctx, r.db, "orders", id)
	}

	return r.GetByID(ctx, id)
}

// staleOrMissing tells a guarded UPDATE that matched nothing because the row
// is gone (nil) from one whose status moved on (domain.ErrStatusChanged).
func staleOrMissing(ctx context.Context, db *sql.DB, table, id string) error {
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s exists: %w", table, err)
	}
	if exists {
		return domain.ErrStatusChanged
	}
	return nil
}

func (r *OrderRepository) Dashboard(ctx context.Context, from, to *time.Time) (domain.Dashboard, error) {
	dashboard := domain.Dashboard{
		From:          from,
		To:            to,
		Revenue:       decimal.Zero,
		ByStatus:      []domain.StatusSummary{},
		Subscriptions: map[domain.SubscriptionStatus]int{},
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total), 0)
		FROM orders
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		GROUP BY status
		ORDER BY status
	`, from, to)
	if err != nil {
		return dashboard, fmt.Errorf("query order summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s domain.StatusSummary
		if err := rows.Scan(&s.Status, &s.Orders, &s.Revenue); err != nil {
			return dashboard, fmt.Errorf("scan order summary: %w", err)
		}
		dashboard.ByStatus = append(dashboard.ByStatus, s)
		dashboard.TotalOrders += s.Orders
		if s.Status != domain.OrderStatusCancelled {
			dashboard.Revenue = dashboard.Revenue.Add(s.Revenue)
		}
	}

	if err := rows.Err(); err != nil {
		return dashboard, err
	}

	subRows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM subscriptions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		GROUP BY status
	`, from, to)
	if err != nil {
		return dashboard, fmt.Errorf("query subscription summary: %w", err)
	}
	defer func() { _ = subRows.Close() }()

	for subRows.Next() {
		var status domain.SubscriptionStatus
		var count int
		if err := subRows.Scan(&status, &count); err != nil {
			return dashboard, fmt.Errorf("scan subscription summary: %w", err)
		}
		dashboard.Subscriptions[status] = count
	}

	return dashboard, subRows.Err()
}
