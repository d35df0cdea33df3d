package catalog

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

var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInsufficientReserved = errors.New("insufficient reserved stock")
	ErrDuplicateSKU         = errors.New("duplicate sku")
)

type ProductFilter struct {
	Category string
	IDs      []string
}

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) List(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	var ids []string
	if filter.IDs != nil {
		// unparsable ids can never match and would fail the uuid[] cast
		ids = lo.Filter(filter.IDs, func(id string, _ int) bool {
			return uuid.Validate(id) == nil
		})
		if len(ids) == 0 {
			return []domain.Product{}, nil
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sku, name, category, base_price, available, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR category = $1)
		  AND ($2::uuid[] IS NULL OR id = ANY($2::uuid[]))
		ORDER BY sku
	`, filter.Category, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	productMap := make(map[string]*domain.Product)
	var productIDs []string

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.BasePrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Tiers = []domain.PriceTier{}
		productMap[p.ID] = &p
		productIDs = append(productIDs, p.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(productIDs) == 0 {
		return []domain.Product{}, nil
	}

	tierRows, err := r.db.QueryContext(ctx, `
		SELECT product_id, min_quantity, unit_price
		FROM price_tiers
		WHERE product_id = ANY($1::uuid[])
		ORDER BY product_id, min_quantity
	`, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("query price tiers: %w", err)
	}
	defer func() { _ = tierRows.Close() }()

	for tierRows.Next() {
		var productID string
		var tier domain.PriceTier
		if err := tierRows.Scan(&productID, &tier.MinQuantity, &tier.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan price tier: %w", err)
		}
		p := productMap[productID]
		p.Tiers = append(p.Tiers, tier)
	}

	if err := tierRows.Err(); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		products = append(products, *productMap[id])
	}

	return products, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	products, err := r.List(ctx, ProductFilter{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	return &products[0], nil
}

func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM products WHERE sku = $1`, sku).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by sku: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p.ID = uuid.New().String()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, base_price, available, reserved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
	`, p.ID, p.SKU, p.Name, p.Category, p.BasePrice, p.Stock, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateSKU, p.SKU)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	if err := replaceTiers(ctx, tx, p.ID, p.Tiers); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdatePricing replaces the base price and the full tier schedule of a product.
func (r *ProductRepository) UpdatePricing(ctx context.Context, id string, basePrice decimal.Decimal, tiers []domain.PriceTier) (*domain.Product, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE products SET base_price = $1, updated_at = NOW()
		WHERE id = $2
	`, basePrice, id)
	if err != nil {
		return nil, fmt.Errorf("update base price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	if err := replaceTiers(ctx, tx, id, tiers); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// UpsertBySKU inserts the product or overwrites the existing one with the same SKU.
func (r *ProductRepository) UpsertBySKU(ctx context.Context, p *domain.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (id, sku, name, category, base_price, available, reserved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
		ON CONFLICT (sku) DO UPDATE
		SET name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    base_price = EXCLUDED.base_price,
		    available = EXCLUDED.available,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, uuid.New().String(), p.SKU, p.Name, p.Category, p.BasePrice, p.Stock).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.SKU, err)
	}

	if err := replaceTiers(ctx, tx, p.ID, p.Tiers); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceTiers(ctx context.Context, tx *sql.Tx, productID string, tiers []domain.PriceTier) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM price_tiers WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("delete price tiers: %w", err)
	}

	for _, tier := range tiers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_tiers (product_id, min_quantity, unit_price)
			VALUES ($1, $2, $3)
		`, productID, tier.MinQuantity, tier.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert price tier %d: %w", tier.MinQuantity, err)
		}
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *ProductRepository) ListStock(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sku, available, reserved
		FROM products
		ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.StockLevel{}
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.SKU, &stock.Available, &stock.Reserved); err != nil {
			return nil, err
		}
		items = append(items, stock)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *ProductRepository) GetStock(ctx context.Context, productID string) (*domain.StockLevel, error) {
	if uuid.Validate(productID) != nil {
		return nil, nil
	}

	stock := &domain.StockLevel{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, sku, available, reserved
		FROM products
		WHERE id = $1
	`, productID).Scan(&stock.ProductID, &stock.SKU, &stock.Available, &stock.Reserved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return stock, nil
}

func (r *ProductRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET available = available - $2, reserved = reserved + $2
		WHERE id = $1 AND available >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

func (r *ProductRepository) Release(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET available = available + $2, reserved = reserved - $2
		WHERE id = $1 AND reserved >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientReserved
	}

	return nil
}
