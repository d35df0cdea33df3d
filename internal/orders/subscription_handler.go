package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joao-fontenele/medportal/internal/auth"
	"github.com/joao-fontenele/medportal/internal/domain"
)

func (h *Handler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	customerID := ac.UserID
	if ac.IsAdmin() {
		customerID = r.URL.Query().Get("customer_id")
	}

	subs, err := h.subscriptions.List(r.Context(), customerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list subscriptions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) HandleGetSubscription(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	sub, err := h.findSubscription(r.Context(), r.PathValue("id"), ac)
	if err != nil {
		h.writeLookupError(w, r, "subscription", err)
		return
	}

	h.writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) HandlePauseSubscription(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	h.changeSubscriptionStatus(w, r, ac, (*domain.Subscription).Pause)
}

func (h *Handler) HandleResumeSubscription(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	h.changeSubscriptionStatus(w, r, ac, (*domain.Subscription).Resume)
}

func (h *Handler) HandleCancelSubscription(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	h.changeSubscriptionStatus(w, r, ac, (*domain.Subscription).Cancel)
}

func (h *Handler) changeSubscriptionStatus(w http.ResponseWriter, r *http.Request, ac auth.Context, transition func(*domain.Subscription) error) {
	ctx := r.Context()

	sub, err := h.findSubscription(ctx, r.PathValue("id"), ac)
	if err != nil {
		h.writeLookupError(w, r, "subscription", err)
		return
	}

	from := sub.Status
	if err := transition(sub); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.subscriptions.UpdateStatus(ctx, sub.ID, from, sub.Status)
	if errors.Is(err, domain.ErrStatusChanged) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update subscription status", "error", err, "subscription_id", sub.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if updated == nil {
		h.writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	h.metrics.subscriptionStatusChanged(ctx, updated.Status)
	h.logger.InfoContext(ctx, "subscription status updated",
		"subscription_id", updated.ID,
		"from", from,
		"status", updated.Status,
		"user_id", ac.UserID,
	)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleUpdateSubscriptionSchedule(w http.ResponseWriter, r *http.Request, ac auth.Context) {
	id := r.PathValue("id")

	var req domain.SubscriptionSchedule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.NextDelivery == nil && req.DeliveryCount == nil {
		h.writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.DeliveryCount != nil && *req.DeliveryCount < 0 {
		h.writeError(w, http.StatusBadRequest, "delivery count must not be negative")
		return
	}

	sub, err := h.subscriptions.UpdateSchedule(r.Context(), id, req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to update subscription schedule", "error", err, "subscription_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if sub == nil {
		h.writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	h.logger.InfoContext(r.Context(), "subscription schedule updated", "subscription_id", id, "admin_id", ac.UserID)
	h.writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) findSubscription(ctx context.Context, id string, ac auth.Context) (*domain.Subscription, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	sub, err := h.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub == nil || !ac.CanAccess(sub.CustomerID) {
		return nil, ErrNotFound
	}

	return sub, nil
}
