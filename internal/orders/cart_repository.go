package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joao-fontenele/medportal/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) Get(ctx context.Context, ownerID string) (domain.Cart, error) {
	cart := domain.Cart{OwnerID: ownerID, Lines: []domain.CartLine{}}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, subscription, added_at
		FROM cart_lines
		WHERE owner_id = $1
		ORDER BY added_at, product_id
	`, ownerID)
	if err != nil {
		return cart, fmt.Errorf("query cart: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.Subscription, &line.AddedAt); err != nil {
			return cart, fmt.Errorf("scan cart line: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}

	return cart, rows.Err()
}

// AddLine adds quantity units of the product, merging with an existing line.
// The subscription flag of the latest add wins.
func (r *CartRepository) AddLine(ctx context.Context, ownerID string, line domain.CartLine) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_lines (owner_id, product_id, quantity, subscription, added_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner_id, product_id) DO UPDATE
		SET quantity = cart_lines.quantity + EXCLUDED.quantity,
		    subscription = EXCLUDED.subscription
	`, ownerID, line.ProductID, line.Quantity, line.Subscription)
	if err != nil {
		return fmt.Errorf("add cart line: %w", err)
	}
	return nil
}

// UpdateLine sets the quantity and, when subscription is not nil, the flag.
// It reports whether the line existed.
func (r *CartRepository) UpdateLine(ctx context.Context, ownerID, productID string, quantity int, subscription *bool) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_lines
		SET quantity = $3, subscription = COALESCE($4, subscription)
		WHERE owner_id = $1 AND product_id = $2
	`, ownerID, productID, quantity, subscription)
	if err != nil {
		return false, fmt.Errorf("update cart line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *CartRepository) RemoveLine(ctx context.Context, ownerID, productID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE owner_id = $1 AND product_id = $2
	`, ownerID, productID)
	if err != nil {
		return false, fmt.Errorf("remove cart line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
