package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/dispatch-ext/backend/internal/authprovider"
)

// IDTokenVerifier is the part of the Firebase auth client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens sent as bearer tokens.
type FirebaseVerifier struct {
	client IDTokenVerifier
}

// NewFirebaseVerifier initializes a Firebase app from a service account file.
func NewFirebaseVerifier(ctx context.Context, credentialsFile string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// NewFirebaseVerifierWithClient wraps an existing token verifier.
func NewFirebaseVerifierWithClient(client IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// GetSession implements authprovider.SessionVerifier. Rejected tokens are reported as no session.
func (f *FirebaseVerifier) GetSession(ctx context.Context, headers http.Header) (*authprovider.Session, error) {
	raw, ok := bearerToken(headers)
	if !ok {
		return nil, nil
	}
	token, err := f.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, nil
	}
	s := &authprovider.Session{
		UserID:    token.UID,
		ExpiresAt: time.Unix(token.Expires, 0),
	}
	if v, ok := token.Claims["email"].(string); ok {
		s.Email = v
	}
	if v, ok := token.Claims["name"].(string); ok {
		s.Name = v
	}
	if v, ok := token.Claims["email_verified"].(bool); ok {
		s.EmailVerified = v
	}
	if v, ok := token.Claims["picture"].(string); ok && v != "" {
		s.Image = &v
	}
	return s, nil
}
