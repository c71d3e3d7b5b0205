package billing

import (
	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/internal/middleware"
	"github.com/dispatch-ext/backend/pkg/response"
)

// SubscriptionRequest is the body for POST /subscriptions.
type SubscriptionRequest struct {
	OrganizationID string `json:"organizationId"`
	PlanID         string `json:"planId"`
	ActiveSeats    *int   `json:"activeSeats"`
}

// CreateSubscription handles POST /subscriptions (SUPER_ADMIN).
func (h *Handler) CreateSubscription(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body SubscriptionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, ErrSubscriptionInput)
		return
	}
	sub, err := h.svc.CreateSubscription(c.Request.Context(), actor, SubscriptionInput{
		OrganizationID: body.OrganizationID,
		PlanID:         body.PlanID,
		ActiveSeats:    body.ActiveSeats,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// ListSubscriptions handles GET /subscriptions?organizationId= (SUPER_ADMIN).
func (h *Handler) ListSubscriptions(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	list, err := h.svc.ListSubscriptions(c.Request.Context(), actor, c.Query("organizationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetSubscription handles GET /subscriptions/:id (SUPER_ADMIN).
func (h *Handler) GetSubscription(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	sub, err := h.svc.GetSubscription(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sub)
}

// CancelSubscription handles POST /subscriptions/:id/cancel (SUPER_ADMIN).
func (h *Handler) CancelSubscription(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	sub, err := h.svc.CancelSubscription(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sub)
}
