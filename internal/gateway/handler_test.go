package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/joao-fontenele/medportal/internal/auth"
)

func newTestGateway(catalogURL, ordersURL string, client *http.Client) http.Handler {
	handler := NewHandler(
		NewServiceProxy(catalogURL, client),
		NewServiceProxy(ordersURL, client),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	mux := http.NewServeMux()
	handler.Register(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })
	return Middleware(mux)
}

func TestHandler_Routing(t *testing.T) {
	catalogServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"catalog","path":"` + r.URL.Path + `"}`))
	}))
	defer catalogServer.Close()

	ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"orders","path":"` + r.URL.Path + `"}`))
	}))
	defer ordersServer.Close()

	gw := newTestGateway(catalogServer.URL, ordersServer.URL, http.DefaultClient)

	tests := []struct {
		method      string
		path        string
		wantService string
	}{
		{http.MethodGet, "/products", "catalog"},
		{http.MethodGet, "/products/p1/quote", "catalog"},
		{http.MethodPut, "/products/p1/pricing", "catalog"},
		{http.MethodGet, "/stock/p1", "catalog"},
		{http.MethodGet, "/cart", "orders"},
		{http.MethodPatch, "/cart/items/p1", "orders"},
		{http.MethodPost, "/orders", "orders"},
		{http.MethodPatch, "/orders/o1/status", "orders"},
		{http.MethodPost, "/subscriptions/s1/pause", "orders"},
		{http.MethodGet, "/admin/dashboard", "orders"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			gw.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}

			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["service"] != tt.wantService {
				t.Errorf("expected %s, got %s", tt.wantService, resp["service"])
			}
			if resp["path"] != tt.path {
				t.Errorf("expected path %s, got %s", tt.path, resp["path"])
			}
		})
	}

	t.Run("stock reservation is not routed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stock/p1/reserve", strings.NewReader(`{"quantity":1}`))
		rec := httptest.NewRecorder()

		gw.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 404 or 405, got %d", rec.Code)
		}
	})
}

func TestHandler_ForwardsIdentityAndRequestID(t *testing.T) {
	ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(auth.HeaderUserID) != "c1" {
			t.Errorf("expected user id c1, got %q", r.Header.Get(auth.HeaderUserID))
		}
		if r.Header.Get(auth.HeaderUserRole) != "customer" {
			t.Errorf("expected role customer, got %q", r.Header.Get(auth.HeaderUserRole))
		}
		if r.Header.Get(middleware.RequestIDHeader) == "" {
			t.Error("expected request id header")
		}
		if r.URL.RawQuery != "status=pending" {
			t.Errorf("expected query to be kept, got %q", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "" {
			t.Errorf("unexpected body: %s", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ordersServer.Close()

	gw := newTestGateway("http://unused", ordersServer.URL, ordersServer.Client())

	req := httptest.NewRequest(http.MethodGet, "/orders?status=pending", nil)
	auth.Context{UserID: "c1", Role: auth.RoleCustomer}.Apply(req)
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHandler_UpstreamErrors(t *testing.T) {
	t.Run("preserves downstream error status", func(t *testing.T) {
		catalogServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"product not found"}`))
		}))
		defer catalogServer.Close()

		gw := newTestGateway(catalogServer.URL, "http://unused", catalogServer.Client())

		req := httptest.NewRequest(http.MethodGet, "/products/unknown", nil)
		rec := httptest.NewRecorder()

		gw.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
		if rec.Body.String() != `{"error":"product not found"}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("returns 502 when orders service unavailable", func(t *testing.T) {
		gw := newTestGateway("http://unused", "http://localhost:99999", &http.Client{})

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		gw.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestMiddleware_RecoversPanics(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}
