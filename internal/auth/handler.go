package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/response"
)

// UserLister lists local users.
type UserLister interface {
	List(ctx context.Context) ([]models.User, error)
}

// Handler handles identity HTTP endpoints.
type Handler struct {
	users  UserLister
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, logger: logger}
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		response.Error(c, ErrUnauthenticated)
		return
	}
	response.OK(c, id)
}

// List handles GET /users (SUPER_ADMIN only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}
