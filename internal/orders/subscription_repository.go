package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/joao-fontenele/medportal/internal/domain"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, order_id, customer_id, cycle, next_delivery, delivery_count, status, created_at, updated_at`

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var s domain.Subscription
	var next sql.NullTime
	err := row.Scan(&s.ID, &s.OrderID, &s.CustomerID, &s.Cycle, &next, &s.DeliveryCount, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if next.Valid {
		s.NextDelivery = &next.Time
	}
	return s, err
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	s, err := scanSubscription(r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return &s, nil
}

// List returns the subscriptions of customerID, or all of them when customerID is empty.
func (r *SubscriptionRepository) List(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := []domain.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

// UpdateStatus moves the subscription from status from to status to. If the
// stored status is no longer from it returns domain.ErrStatusChanged.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, from, to domain.SubscriptionStatus) (*domain.Subscription, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return nil, fmt.Errorf("update subscription status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, staleOrMissing(ctx, r.db, "subscriptions", id)
	}

	return r.GetByID(ctx, id)
}

func (r *SubscriptionRepository) UpdateSchedule(ctx context.Context, id string, schedule domain.SubscriptionSchedule) (*domain.Subscription, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET next_delivery = COALESCE($1, next_delivery),
		    delivery_count = COALESCE($2, delivery_count),
		    updated_at = NOW()
		WHERE id = $3
	`, schedule.NextDelivery, schedule.DeliveryCount, id)
	if err != nil {
		return nil, fmt.Errorf("update subscription schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}
