package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetProducts(t *testing.T) {
	t.Run("keys products by id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/products", r.URL.Path)
			assert.Equal(t, "a,b", r.URL.Query().Get("ids"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"a","sku":"A","base_price":"100","tiers":[{"min_quantity":2,"unit_price":"90"}]}]`))
		}))
		defer server.Close()

		products, err := NewClient(server.URL, server.Client()).GetProducts(context.Background(), []string{"a", "b", "a"})
		require.NoError(t, err)

		require.Len(t, products, 1)
		assert.Equal(t, "A", products["a"].SKU)
		assert.Len(t, products["a"].Tiers, 1)
	})

	t.Run("no ids skips the request", func(t *testing.T) {
		products, err := NewClient("http://localhost:99999", &http.Client{}).GetProducts(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, products)
	})

	t.Run("upstream error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := NewClient(server.URL, server.Client()).GetProducts(context.Background(), []string{"a"})
		assert.Error(t, err)
	})
}

func TestClient_Reserve(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/stock/p1/reserve", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		assert.NoError(t, NewClient(server.URL, server.Client()).Reserve(context.Background(), "p1", 2))
	})

	t.Run("conflict maps to ErrInsufficientStock", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		err := NewClient(server.URL, server.Client()).Reserve(context.Background(), "p1", 2)
		assert.True(t, errors.Is(err, ErrInsufficientStock))
	})

	t.Run("release conflict maps to ErrInsufficientReserved", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		err := NewClient(server.URL, server.Client()).Release(context.Background(), "p1", 2)
		assert.True(t, errors.Is(err, ErrInsufficientReserved))
		assert.False(t, errors.Is(err, ErrInsufficientStock))
	})

	t.Run("release path", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/stock/p1/release", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		assert.NoError(t, NewClient(server.URL, server.Client()).Release(context.Background(), "p1", 2))
	})
}
