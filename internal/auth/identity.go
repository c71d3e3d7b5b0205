package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// contextIdentity is the gin context key for the resolved identity.
const contextIdentity = "identity"

// Identity is the authenticated caller, resolved once per request and passed explicitly to services.
type Identity struct {
	UserID        string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
	// Credentials are the original request credentials, forwarded on provider calls made for this caller.
	Credentials http.Header `json:"-"`
}

// SetIdentity stores id in the gin context.
func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(contextIdentity, id)
}

// IdentityFrom returns the identity stored by the authentication middleware.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(contextIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}
