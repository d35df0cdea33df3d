package orders

import (
	"encoding/json"
	"net/http"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/medportal/internal/auth"
	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/pricing"
)

type cartResponse struct {
	domain.Cart
	Total decimal.Decimal `json:"total"`
	// UnavailableProductIDs lists lines left out of Total because the catalog no longer has them.
	UnavailableProductIDs []string `json:"unavailable_product_ids,omitempty"`
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	h.respondCart(w, r, ac, http.StatusOK)
}

type addCartItemRequest struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	Subscription bool   `json:"subscription"`
}

func (h *Handler) HandleAddCartItem(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	ctx := r.Context()

	var req addCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	products, err := h.products.GetProducts(ctx, []string{req.ProductID})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to look up product", "error", err, "product_id", req.ProductID)
		h.writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	if _, ok := products[req.ProductID]; !ok {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	line := domain.CartLine{ProductID: req.ProductID, Quantity: req.Quantity, Subscription: req.Subscription}
	if err := h.carts.AddLine(ctx, ac.UserID, line); err != nil {
		h.logger.ErrorContext(ctx, "failed to add cart line", "error", err, "customer_id", ac.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(ctx, "cart line added", "customer_id", ac.UserID, "product_id", req.ProductID, "quantity", req.Quantity)
	h.respondCart(w, r, ac, http.StatusOK)
}

type updateCartItemRequest struct {
	Quantity     int   `json:"quantity"`
	Subscription *bool `json:"subscription"`
}

func (h *Handler) HandleUpdateCartItem(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	productID := r.PathValue("productId")

	var req updateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	found, err := h.carts.UpdateLine(r.Context(), ac.UserID, productID, req.Quantity, req.Subscription)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to update cart line", "error", err, "customer_id", ac.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !found {
		h.writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	h.respondCart(w, r, ac, http.StatusOK)
}

func (h *Handler) HandleRemoveCartItem(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	productID := r.PathValue("productId")

	found, err := h.carts.RemoveLine(r.Context(), ac.UserID, productID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to remove cart line", "error", err, "customer_id", ac.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !found {
		h.writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondCart writes the caller's cart with a live total. Unlike an order,
// the cart is always priced against the current catalog.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, ac auth.Context, status int) {
	ctx := r.Context()

	cart, err := h.carts.Get(ctx, ac.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load cart", "error", err, "customer_id", ac.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := cartResponse{Cart: cart, Total: decimal.Zero}
	if len(cart.Lines) > 0 {
		products, err := h.products.GetProducts(ctx, cart.ProductIDs())
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to look up products", "error", err, "customer_id", ac.UserID)
			h.writeError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}

		resp.Total = pricing.ComputeTotal(cart.Lines, products)
		resp.UnavailableProductIDs = lo.Filter(cart.ProductIDs(), func(id string, _ int) bool {
			_, ok := products[id]
			return !ok
		})
	}

	h.writeJSON(w, status, resp)
}
