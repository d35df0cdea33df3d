package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/joao-fontenele/medportal/internal/domain"
)

// Client talks to the catalog service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// GetProducts returns the requested products keyed by id. Unknown ids are absent from the map.
func (c *Client) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}

	u := c.baseURL + "/products?ids=" + url.QueryEscape(strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create products request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog service returned status %d", resp.StatusCode)
	}

	var products []domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	return lo.KeyBy(products, func(p domain.Product) string { return p.ID }), nil
}

func (c *Client) Reserve(ctx context.Context, productID string, quantity int) error {
	return c.adjustStock(ctx, productID, "reserve", quantity)
}

func (c *Client) Release(ctx context.Context, productID string, quantity int) error {
	return c.adjustStock(ctx, productID, "release", quantity)
}

func (c *Client) adjustStock(ctx context.Context, productID, action string, quantity int) error {
	data, err := json.Marshal(map[string]int{"quantity": quantity})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	u := fmt.Sprintf("%s/stock/%s/%s", c.baseURL, url.PathEscape(productID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s stock for product %s: %w", action, productID, err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		if action == "release" {
			return fmt.Errorf("%w: product %s", ErrInsufficientReserved, productID)
		}
		return fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog service returned status %d for %s of product %s", resp.StatusCode, action, productID)
	}

	return nil
}
