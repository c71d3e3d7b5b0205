package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/apperr"
)

var (
	// ErrUnauthenticated is returned when the request carries no valid session.
	ErrUnauthenticated = apperr.Unauthenticated("Invalid or expired session")
	// ErrAuthFailed is returned when the provider could not be asked.
	ErrAuthFailed = apperr.Unauthenticated("Authentication failed")
)

// SessionCache caches verified sessions keyed by credential fingerprint.
type SessionCache interface {
	Get(ctx context.Context, key string) (*authprovider.Session, error)
	Set(ctx context.Context, key string, s *authprovider.Session) error
}

// UserSyncer mirrors provider users into the local users table.
type UserSyncer interface {
	UpsertFromSession(ctx context.Context, s *authprovider.Session) (*models.User, error)
}

// Resolver turns request credentials into an Identity.
type Resolver struct {
	verifier authprovider.SessionVerifier
	cache    SessionCache
	users    UserSyncer
	logger   *zap.Logger
}

// NewResolver creates a resolver. cache may be nil to always ask the provider.
func NewResolver(verifier authprovider.SessionVerifier, cache SessionCache, users UserSyncer, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{verifier: verifier, cache: cache, users: users, logger: logger}
}

// Resolve returns the caller's identity, ErrUnauthenticated when there is no live session, or
// ErrAuthFailed when the session could not be verified.
func (r *Resolver) Resolve(ctx context.Context, headers http.Header) (*Identity, error) {
	key := Fingerprint(headers)
	if key == "" {
		return nil, ErrUnauthenticated
	}

	if r.cache != nil {
		s, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("session cache read failed", zap.Error(err))
		} else if s != nil {
			return newIdentity(s, headers), nil
		}
	}

	s, err := r.verifier.GetSession(ctx, headers)
	if err != nil {
		r.logger.Error("session verification failed", zap.Error(err))
		return nil, ErrAuthFailed
	}
	if s == nil {
		return nil, ErrUnauthenticated
	}

	if r.users != nil {
		if _, err := r.users.UpsertFromSession(ctx, s); err != nil {
			r.logger.Error("user sync failed", zap.String("user_id", s.UserID), zap.Error(err))
			return nil, ErrAuthFailed
		}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, s); err != nil {
			r.logger.Warn("session cache write failed", zap.Error(err))
		}
	}
	return newIdentity(s, headers), nil
}

func newIdentity(s *authprovider.Session, headers http.Header) *Identity {
	creds := http.Header{}
	for _, k := range []string{"Cookie", "Authorization"} {
		for _, v := range headers.Values(k) {
			creds.Add(k, v)
		}
	}
	return &Identity{
		UserID:        s.UserID,
		Email:         s.Email,
		Name:          s.Name,
		EmailVerified: s.EmailVerified,
		Credentials:   creds,
	}
}
