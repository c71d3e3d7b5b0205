package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/pkg/response"
)

// SuperAdminChecker verifies the SUPER_ADMIN tier.
type SuperAdminChecker interface {
	RequireSuperAdmin(ctx context.Context, userID string) error
}

// RequireSuperAdmin allows only SUPER_ADMIN callers. It must run after Authenticate.
func RequireSuperAdmin(checker SuperAdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := MustIdentity(c)
		if !ok {
			return
		}
		if err := checker.RequireSuperAdmin(c.Request.Context(), id.UserID); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}
