package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/joao-fontenele/medportal/internal/auth"
	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/pricing"
)

var ErrNotFound = errors.New("not found")

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order, sub *domain.Subscription, clearCart bool) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, trackingNumber *string) (*domain.Order, error)
	Dashboard(ctx context.Context, from, to *time.Time) (domain.Dashboard, error)
}

type CartStore interface {
	Get(ctx context.Context, ownerID string) (domain.Cart, error)
	AddLine(ctx context.Context, ownerID string, line domain.CartLine) error
	UpdateLine(ctx context.Context, ownerID, productID string, quantity int, subscription *bool) (bool, error)
	RemoveLine(ctx context.Context, ownerID, productID string) (bool, error)
}

type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context, customerID string) ([]domain.Subscription, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.SubscriptionStatus) (*domain.Subscription, error)
	UpdateSchedule(ctx context.Context, id string, schedule domain.SubscriptionSchedule) (*domain.Subscription, error)
}

// ProductLookup returns the products found among ids, keyed by id. Unknown ids
// are absent from the map rather than an error.
type ProductLookup interface {
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Options struct {
	Calculator   *pricing.Calculator
	StatusPolicy domain.StatusPolicy
	// Publisher may be nil, in which case no events are emitted.
	Publisher EventPublisher
	// CheckoutProducts prices orders. It must read the catalog directly so
	// order lines snapshot the price in effect at checkout; the lookup given
	// to NewHandler may be cached and only serves cart views. Defaults to that
	// lookup.
	CheckoutProducts ProductLookup
}

type Handler struct {
	orders        OrderStore
	carts         CartStore
	subscriptions SubscriptionStore
	products      ProductLookup
	checkout      ProductLookup
	calculator    *pricing.Calculator
	policy        domain.StatusPolicy
	publisher     EventPublisher
	metrics       *metrics
	logger        *slog.Logger
	now           func() time.Time
}

func NewHandler(orders OrderStore, carts CartStore, subscriptions SubscriptionStore, products ProductLookup, opts Options, logger *slog.Logger) (*Handler, error) {
	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	if opts.Calculator == nil {
		opts.Calculator = pricing.NewCalculator(pricing.ModeLenient)
	}
	if opts.StatusPolicy == "" {
		opts.StatusPolicy = domain.StatusPolicyPermissive
	}
	if opts.CheckoutProducts == nil {
		opts.CheckoutProducts = products
	}

	return &Handler{
		orders:        orders,
		carts:         carts,
		subscriptions: subscriptions,
		products:      products,
		checkout:      opts.CheckoutProducts,
		calculator:    opts.Calculator,
		policy:        opts.StatusPolicy,
		publisher:     opts.Publisher,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /cart", wrap(auth.Authenticated(h.HandleGetCart)))
	mux.HandleFunc("POST /cart/items", wrap(auth.Authenticated(h.HandleAddCartItem)))
	mux.HandleFunc("PATCH /cart/items/{productId}", wrap(auth.Authenticated(h.HandleUpdateCartItem)))
	mux.HandleFunc("DELETE /cart/items/{productId}", wrap(auth.Authenticated(h.HandleRemoveCartItem)))

	mux.HandleFunc("POST /orders", wrap(auth.Authenticated(h.HandleCheckout)))
	mux.HandleFunc("GET /orders", wrap(auth.Authenticated(h.HandleList)))
	mux.HandleFunc("GET /orders/{id}", wrap(auth.Authenticated(h.HandleGet)))
	mux.HandleFunc("PATCH /orders/{id}/status", wrap(auth.AdminOnly(h.HandleUpdateStatus)))

	mux.HandleFunc("GET /subscriptions", wrap(auth.Authenticated(h.HandleListSubscriptions)))
	mux.HandleFunc("GET /subscriptions/{id}", wrap(auth.Authenticated(h.HandleGetSubscription)))
	mux.HandleFunc("POST /subscriptions/{id}/pause", wrap(auth.Authenticated(h.HandlePauseSubscription)))
	mux.HandleFunc("POST /subscriptions/{id}/resume", wrap(auth.Authenticated(h.HandleResumeSubscription)))
	mux.HandleFunc("POST /subscriptions/{id}/cancel", wrap(auth.Authenticated(h.HandleCancelSubscription)))
	mux.HandleFunc("PATCH /subscriptions/{id}", wrap(auth.AdminOnly(h.HandleUpdateSubscriptionSchedule)))

	mux.HandleFunc("GET /admin/dashboard", wrap(auth.AdminOnly(h.HandleDashboard)))
}

type checkoutRequest struct {
	Items             []domain.CartLine `json:"items"`
	PaymentMethod     string            `json:"payment_method"`
	DeliveryAddress   string            `json:"delivery_address"`
	SubscriptionCycle string            `json:"subscription_cycle"`
	NextDeliveryDate  string            `json:"next_delivery_date"`
}

type checkoutResponse struct {
	*domain.Order
	SkippedProductIDs []string `json:"skipped_product_ids,omitempty"`
}

// HandleCheckout prices the request items, or the stored cart when none are
// given, and persists the result as a pending order. Prices are snapshotted
// into the order lines at this point and never re-resolved.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	ctx := r.Context()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	if req.PaymentMethod == "" || req.DeliveryAddress == "" {
		h.writeError(w, http.StatusBadRequest, "payment_method and delivery_address are required")
		return
	}

	fromCart := len(req.Items) == 0
	lines := req.Items
	if fromCart {
		cart, err := h.carts.Get(ctx, ac.UserID)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to load cart", "error", err, "customer_id", ac.UserID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		lines = cart.Lines
	}

	if len(lines) == 0 {
		h.writeError(w, http.StatusUnprocessableEntity, "no items to order")
		return
	}

	productIDs := lo.Map(lines, func(l domain.CartLine, _ int) string { return l.ProductID })
	products, err := h.checkout.GetProducts(ctx, productIDs)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to look up products", "error", err, "customer_id", ac.UserID)
		h.writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	quote, err := h.calculator.Quote(lines, products)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownProduct) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(quote.Skipped) > 0 {
		h.logger.WarnContext(ctx, "skipped unknown products at checkout", "customer_id", ac.UserID, "product_ids", quote.Skipped)
	}

	if len(quote.Lines) == 0 {
		h.writeError(w, http.StatusUnprocessableEntity, "none of the items are available")
		return
	}

	order := &domain.Order{
		CustomerID:      ac.UserID,
		CustomerEmail:   ac.Email,
		Lines:           quote.Lines,
		Total:           quote.Total,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		Status:          domain.OrderStatusPending,
		CreatedAt:       h.now().UTC(),
	}

	var sub *domain.Subscription
	if order.HasSubscriptionLines() {
		sub, err = newSubscription(req.SubscriptionCycle, req.NextDeliveryDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.orders.Create(ctx, order, sub, fromCart); err != nil {
		h.logger.ErrorContext(ctx, "failed to create order", "error", err, "customer_id", ac.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.metrics.orderCreated(ctx, order.Total, sub != nil)

	h.publish(ctx, domain.TopicOrderCreated, order.ID, domain.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CustomerEmail: order.CustomerEmail,
		Lines:         order.Lines,
		Total:         order.Total,
		Timestamp:     order.CreatedAt,
	})

	h.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"customer_id", order.CustomerID,
		"total", order.Total.String(),
		"subscription_id", order.SubscriptionID,
	)
	h.writeJSON(w, http.StatusCreated, checkoutResponse{Order: order, SkippedProductIDs: quote.Skipped})
}

func newSubscription(cycle, nextDelivery string) (*domain.Subscription, error) {
	if strings.TrimSpace(cycle) == "" {
		return nil, errors.New("subscription_cycle is required for subscription items")
	}

	parsed, err := domain.ParseSubscriptionCycle(cycle)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		Cycle:  parsed.String(),
		Status: domain.SubscriptionStatusActive,
	}

	if nextDelivery != "" {
		next, err := parseTime(nextDelivery)
		if err != nil {
			return nil, fmt.Errorf("invalid next_delivery_date: %w", err)
		}
		sub.NextDelivery = &next
	}

	return sub, nil
}

// HandleList serves the caller's orders. Admins see every order and may
// narrow by ?customer_id=; everyone may filter by ?status=a,b, ?from= and ?to=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	query := r.URL.Query()

	filter := domain.OrderFilter{CustomerID: ac.UserID}
	if ac.IsAdmin() {
		filter.CustomerID = query.Get("customer_id")
	}

	for _, raw := range query["status"] {
		for _, s := range strings.Split(raw, ",") {
			status, err := domain.ParseOrderStatus(s)
			if err != nil {
				h.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.From, filter.To, err = parseWindow(query.Get("from"), query.Get("to")); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.orders.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "orders listed", "count", len(orders), "customer_id", filter.CustomerID)
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	order, err := h.findOrder(r.Context(), r.PathValue("id"), ac)
	if err != nil {
		h.writeLookupError(w, r, "order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
}

// HandleUpdateStatus sets an order's status. Under the permissive policy any
// valid status is accepted from any state.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := h.findOrder(ctx, id, ac)
	if err != nil {
		h.writeLookupError(w, r, "order", err)
		return
	}

	if err := h.policy.Check(current.Status, status); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}

	order, err := h.orders.UpdateStatus(ctx, id, current.Status, status, req.TrackingNumber)
	if errors.Is(err, domain.ErrStatusChanged) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update order status", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if current.Status != order.Status {
		h.metrics.orderStatusChanged(ctx, current.Status, order.Status)
		h.publish(ctx, domain.TopicOrderStatusChanged, order.ID, domain.OrderStatusChangedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			CustomerEmail:  order.CustomerEmail,
			From:           current.Status,
			To:             order.Status,
			TrackingNumber: order.TrackingNumber,
			Timestamp:      h.now().UTC(),
		})
	}

	h.logger.InfoContext(ctx, "order status updated",
		"order_id", order.ID,
		"from", current.Status,
		"status", order.Status,
		"admin_id", ac.UserID,
	)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request, _ auth.Context) {
	from, to, err := parseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dashboard, err := h.orders.Dashboard(r.Context(), from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build dashboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, dashboard)
}

// findOrder hides orders the caller may not see behind ErrNotFound.
func (h *Handler) findOrder(ctx context.Context, id string, ac auth.Context) (*domain.Order, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	order, err := h.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if order == nil || !ac.CanAccess(order.CustomerID) {
		return nil, ErrNotFound
	}

	return order, nil
}

func (h *Handler) publish(ctx context.Context, topic, key string, event any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, topic, key, event); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish event", "error", err, "topic", topic, "key", key)
	}
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// parseWindow parses optional from/to bounds; a date-only "to" covers the whole day.
func parseWindow(fromParam, toParam string) (from, to *time.Time, err error) {
	if fromParam != "" {
		t, err := parseTime(fromParam)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from: %q", fromParam)
		}
		from = &t
	}

	if toParam != "" {
		t, err := parseTime(toParam)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to: %q", toParam)
		}
		if len(toParam) == len(time.DateOnly) {
			t = t.AddDate(0, 0, 1)
		}
		to = &t
	}

	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, errors.New("to is before from")
	}

	return from, to, nil
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, kind string, err error) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, http.StatusNotFound, kind+" not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "failed to get "+kind, "error", err, "id", r.PathValue("id"))
	h.writeError(w, http.StatusInternalServerError, "internal server error")
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
