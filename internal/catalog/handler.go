package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medportal/internal/auth"
	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/pricing"
)

type Store interface {
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	UpdatePricing(ctx context.Context, id string, basePrice decimal.Decimal, tiers []domain.PriceTier) (*domain.Product, error)
	ListStock(ctx context.Context) ([]domain.StockLevel, error)
	GetStock(ctx context.Context, productID string) (*domain.StockLevel, error)
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

type Handler struct {
	repo   Store
	logger *slog.Logger
}

func NewHandler(repo Store, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /products", wrap(h.HandleList))
	mux.HandleFunc("GET /products/{id}", wrap(h.HandleGet))
	mux.HandleFunc("GET /products/{id}/quote", wrap(h.HandleQuote))
	mux.HandleFunc("POST /products", wrap(auth.AdminOnly(h.HandleCreate)))
	mux.HandleFunc("PUT /products/{id}/pricing", wrap(auth.AdminOnly(h.HandleUpdatePricing)))
	mux.HandleFunc("GET /stock", wrap(h.HandleListStock))
	mux.HandleFunc("GET /stock/{productId}", wrap(h.HandleGetStock))
	mux.HandleFunc("POST /stock/{productId}/reserve", wrap(h.HandleReserve))
	mux.HandleFunc("POST /stock/{productId}/release", wrap(h.HandleRelease))
}

// HandleList serves the catalog, optionally narrowed by ?category= and ?ids=a,b.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ProductFilter{Category: r.URL.Query().Get("category")}
	if ids := r.URL.Query().Get("ids"); ids != "" {
		filter.IDs = strings.Split(ids, ",")
	}

	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	product, ok := h.loadProduct(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

type quoteResponse struct {
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	Subscription bool            `json:"subscription"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// HandleQuote previews the tier price for ?quantity= units, discounted when ?subscription=true.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}
	subscription, _ := strconv.ParseBool(r.URL.Query().Get("subscription"))

	product, ok := h.loadProduct(w, r)
	if !ok {
		return
	}

	unitPrice, lineTotal := pricing.LineTotal(*product, quantity, subscription)

	h.writeJSON(w, http.StatusOK, quoteResponse{
		ProductID:    product.ID,
		Quantity:     quantity,
		Subscription: subscription,
		UnitPrice:    unitPrice,
		LineTotal:    lineTotal,
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	var product domain.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := product.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	product.SortTiers()

	if err := h.repo.Create(r.Context(), &product); err != nil {
		if errors.Is(err, ErrDuplicateSKU) {
			h.writeError(w, http.StatusConflict, "sku already exists")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to create product", "error", err, "sku", product.SKU)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "product created", "product_id", product.ID, "sku", product.SKU, "admin_id", ac.UserID)
	h.writeJSON(w, http.StatusCreated, product)
}

type updatePricingRequest struct {
	BasePrice decimal.Decimal    `json:"base_price"`
	Tiers     []domain.PriceTier `json:"tiers"`
}

func (h *Handler) HandleUpdatePricing(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	id := r.PathValue("id")

	var req updatePricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.BasePrice.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "base price must be positive")
		return
	}
	if err := domain.ValidateTiers(req.Tiers); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.repo.UpdatePricing(r.Context(), id, req.BasePrice, req.Tiers)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to update pricing", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.InfoContext(r.Context(), "product pricing updated", "product_id", id, "tiers", len(req.Tiers), "admin_id", ac.UserID)
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListStock(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "stock listed", "count", len(items))
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

type stockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	productID, req, ok := h.decodeStockRequest(w, r)
	if !ok {
		return
	}

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	if err := h.repo.Reserve(r.Context(), productID, req.Quantity); err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			h.writeError(w, http.StatusConflict, "insufficient stock")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to reserve stock", "error", err, "product_id", productID, "quantity", req.Quantity)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondStock(w, r, productID, "stock reserved", req.Quantity)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	productID, req, ok := h.decodeStockRequest(w, r)
	if !ok {
		return
	}

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	if err := h.repo.Release(r.Context(), productID, req.Quantity); err != nil {
		if errors.Is(err, ErrInsufficientReserved) {
			h.writeError(w, http.StatusConflict, "insufficient reserved stock")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to release stock", "error", err, "product_id", productID, "quantity", req.Quantity)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondStock(w, r, productID, "stock released", req.Quantity)
}

func (h *Handler) decodeStockRequest(w http.ResponseWriter, r *http.Request) (string, stockRequest, bool) {
	var req stockRequest

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return "", req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return "", req, false
	}

	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return "", req, false
	}

	return productID, req, true
}

func (h *Handler) respondStock(w http.ResponseWriter, r *http.Request, productID, msg string, quantity int) {
	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get updated stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), msg, "product_id", productID, "quantity", quantity)
	h.writeJSON(w, http.StatusOK, stock)
}

func (h *Handler) loadProduct(w http.ResponseWriter, r *http.Request) (*domain.Product, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return nil, false
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return nil, false
	}

	return product, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
