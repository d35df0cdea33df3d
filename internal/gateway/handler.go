package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	catalogProxy *ServiceProxy
	ordersProxy  *ServiceProxy
	logger       *slog.Logger
}

func NewHandler(catalogProxy, ordersProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		catalogProxy: catalogProxy,
		ordersProxy:  ordersProxy,
		logger:       logger,
	}
}

// Register exposes the public routes. Stock reservation stays internal to
// the worker and is not routed.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	for _, pattern := range []string{
		"GET /products",
		"POST /products",
		"GET /products/{id}",
		"GET /products/{id}/quote",
		"PUT /products/{id}/pricing",
		"GET /stock",
		"GET /stock/{productId}",
	} {
		mux.HandleFunc(pattern, wrap(h.HandleCatalog))
	}

	for _, pattern := range []string{
		"GET /cart",
		"POST /cart/items",
		"PATCH /cart/items/{productId}",
		"DELETE /cart/items/{productId}",
		"GET /orders",
		"POST /orders",
		"GET /orders/{id}",
		"PATCH /orders/{id}/status",
		"GET /subscriptions",
		"GET /subscriptions/{id}",
		"PATCH /subscriptions/{id}",
		"POST /subscriptions/{id}/pause",
		"POST /subscriptions/{id}/resume",
		"POST /subscriptions/{id}/cancel",
		"GET /admin/dashboard",
	} {
		mux.HandleFunc(pattern, wrap(h.HandleOrders))
	}
}

// Middleware assigns a request id to every request and turns panics into 500s.
func Middleware(next http.Handler) http.Handler {
	return middleware.RequestID(middleware.Recoverer(next))
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.catalogProxy)
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy) {
	path := r.URL.Path

	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.InfoContext(r.Context(), "request proxied",
		"method", r.Method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
