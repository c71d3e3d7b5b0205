package members

import (
	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/internal/middleware"
	"github.com/dispatch-ext/backend/pkg/response"
)

// Handler handles membership HTTP endpoints under /organizations/:id/members.
type Handler struct {
	svc *Service
}

// NewHandler creates a members handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// AddMemberRequest is the body for POST /organizations/:id/members.
type AddMemberRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// RemoveMemberRequest is the body for DELETE /organizations/:id/members.
type RemoveMemberRequest struct {
	UserID string `json:"userId"`
}

// List handles GET /organizations/:id/members.
func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Add handles POST /organizations/:id/members.
func (h *Handler) Add(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body AddMemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	m, err := h.svc.Add(c.Request.Context(), actor, c.Param("id"), AddInput{UserID: body.UserID, Email: body.Email, Role: body.Role})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// Remove handles DELETE /organizations/:id/members. The user id comes from the body or ?userId=.
func (h *Handler) Remove(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body RemoveMemberRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	if body.UserID == "" {
		body.UserID = c.Query("userId")
	}
	if err := h.svc.Remove(c.Request.Context(), actor, c.Param("id"), body.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Member removed")
}

// ToggleExtension handles PATCH /organizations/:id/members/:targetUserId/toggleExtension.
func (h *Handler) ToggleExtension(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	res, err := h.svc.ToggleExtension(c.Request.Context(), actor, c.Param("id"), c.Param("targetUserId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OKWithMessage(c, res.Member, res.Message)
}
