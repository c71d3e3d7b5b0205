package billing

import (
	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/internal/middleware"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/response"
)

// Handler handles plan and subscription HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a billing handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// PlanRequest is the body for POST /plans and PATCH /plans/:planId.
type PlanRequest struct {
	Name         *string  `json:"name"`
	PricePerSeat *float64 `json:"pricePerSeat"`
	Features     []string `json:"features"`
}

// ListPlans handles GET /plans.
func (h *Handler) ListPlans(c *gin.Context) {
	list, err := h.svc.ListPlans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetPlan handles GET /plans/:planId.
func (h *Handler) GetPlan(c *gin.Context) {
	p, err := h.svc.GetPlan(c.Request.Context(), c.Param("planId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// CreatePlan handles POST /plans (SUPER_ADMIN).
func (h *Handler) CreatePlan(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body PlanRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, ErrPlanInput)
		return
	}
	p, err := h.svc.CreatePlan(c.Request.Context(), actor, PlanInput{Name: body.Name, PricePerSeat: body.PricePerSeat, Features: body.Features})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// UpdatePlan handles PATCH /plans/:planId (SUPER_ADMIN).
func (h *Handler) UpdatePlan(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body PlanRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	patch := models.PlanPatch{Name: body.Name, PricePerSeat: body.PricePerSeat, Features: body.Features}
	p, err := h.svc.UpdatePlan(c.Request.Context(), actor, c.Param("planId"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// DeletePlan handles DELETE /plans/:planId (SUPER_ADMIN).
func (h *Handler) DeletePlan(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	if err := h.svc.DeletePlan(c.Request.Context(), actor, c.Param("planId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
