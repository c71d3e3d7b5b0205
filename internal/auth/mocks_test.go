package auth_test

import (
	"context"
	"net/http"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
)

type mockVerifier struct {
	getSessionFn func(ctx context.Context, headers http.Header) (*authprovider.Session, error)
	calls        int
}

func (m *mockVerifier) GetSession(ctx context.Context, headers http.Header) (*authprovider.Session, error) {
	m.calls++
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, headers)
	}
	return nil, nil
}

type mockCache struct {
	entries map[string]*authprovider.Session
	getErr  error
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]*authprovider.Session{}}
}

func (m *mockCache) Get(_ context.Context, key string) (*authprovider.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[key], nil
}

func (m *mockCache) Set(_ context.Context, key string, s *authprovider.Session) error {
	m.entries[key] = s
	return nil
}

type mockUserSyncer struct {
	upsertFn func(ctx context.Context, s *authprovider.Session) (*models.User, error)
	synced   []string
}

func (m *mockUserSyncer) UpsertFromSession(ctx context.Context, s *authprovider.Session) (*models.User, error) {
	m.synced = append(m.synced, s.UserID)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, s)
	}
	return &models.User{ID: s.UserID, Email: s.Email, Role: models.GlobalRoleUser}, nil
}

type mockUserLister struct {
	listFn func(ctx context.Context) ([]models.User, error)
}

func (m *mockUserLister) List(ctx context.Context) ([]models.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []models.User{}, nil
}

type mockIDTokenVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*fbauth.Token, error)
}

func (m *mockIDTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error) {
	return m.verifyFn(ctx, idToken)
}
