package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/pkg/response"
)

// IdentityResolver resolves request credentials into an identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, headers http.Header) (*auth.Identity, error)
}

// Authenticate resolves the caller once and stores the identity in the context. Requests without a
// live session are rejected with 401.
func Authenticate(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.Request.Context(), c.Request.Header)
		if err != nil {
			response.Abort(c, err)
			return
		}
		auth.SetIdentity(c, id)
		c.Next()
	}
}

// MustIdentity returns the caller's identity, writing a 401 when the route was not authenticated.
func MustIdentity(c *gin.Context) (*auth.Identity, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.Abort(c, auth.ErrUnauthenticated)
		return nil, false
	}
	return id, true
}
