package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dispatch-ext/backend/internal/authprovider"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds session token claims.
type Claims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 session tokens issued by the identity provider with a shared secret.
// The token is read from a bearer Authorization header or, failing that, the session cookie.
type JWTVerifier struct {
	secret     []byte
	cookieName string
}

// NewJWTVerifier creates a JWT session verifier.
func NewJWTVerifier(secret, cookieName string) *JWTVerifier {
	return &JWTVerifier{
		secret:     []byte(secret),
		cookieName: cookieName,
	}
}

// Generate signs a session token. Used by tooling and tests; production tokens come from the provider.
func (v *JWTVerifier) Generate(userID, email, name string, emailVerified bool, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:        userID,
		Email:         email,
		Name:          name,
		EmailVerified: emailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (v *JWTVerifier) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetSession implements authprovider.SessionVerifier.
func (v *JWTVerifier) GetSession(_ context.Context, headers http.Header) (*authprovider.Session, error) {
	raw := v.tokenFrom(headers)
	if raw == "" {
		return nil, nil
	}
	claims, err := v.Validate(raw)
	if err != nil {
		return nil, nil
	}
	s := &authprovider.Session{
		UserID:        claims.UserID,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func (v *JWTVerifier) tokenFrom(headers http.Header) string {
	if raw, ok := bearerToken(headers); ok {
		return raw
	}
	if v.cookieName == "" {
		return ""
	}
	req := http.Request{Header: headers}
	if c, err := req.Cookie(v.cookieName); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(headers http.Header) (string, bool) {
	parts := strings.SplitN(headers.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
