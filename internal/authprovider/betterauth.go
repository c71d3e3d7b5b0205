package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/pkg/apperr"
)

const (
	pathGetSession   = "/api/auth/get-session"
	pathCreateOrg    = "/api/auth/organization/create"
	pathAddMember    = "/api/auth/organization/add-member"
	pathRemoveMember = "/api/auth/organization/remove-member"

	// maxErrorBody bounds how much of a rejection body is read for its message.
	maxErrorBody = 64 * 1024
)

// forwarded lists the request headers that carry provider credentials.
var forwarded = []string{"Cookie", "Authorization"}

// BetterAuth is an HTTP client for a Better Auth server with the organization plugin enabled.
type BetterAuth struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *zap.Logger
}

// NewBetterAuth creates a Better Auth client. secret, when set, is sent as a bearer token on
// server-to-server calls that carry no user credentials.
func NewBetterAuth(baseURL, secret string, client *http.Client, logger *zap.Logger) *BetterAuth {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BetterAuth{baseURL: strings.TrimRight(baseURL, "/"), secret: secret, client: client, logger: logger}
}

type sessionUser struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	Image         *string `json:"image"`
	EmailVerified bool    `json:"emailVerified"`
}

type sessionEnvelope struct {
	Session *struct {
		UserID    string    `json:"userId"`
		ExpiresAt time.Time `json:"expiresAt"`
	} `json:"session"`
	User *sessionUser `json:"user"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// GetSession implements SessionVerifier.
func (b *BetterAuth) GetSession(ctx context.Context, headers http.Header) (*Session, error) {
	if !hasCredentials(headers) {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+pathGetSession, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	copyCredentials(req.Header, headers)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get session: unexpected status %d", resp.StatusCode)
	}

	var env sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode session: %w", err)
	}
	// A missing session is answered with a null body.
	if env.Session == nil || env.User == nil || env.User.ID == "" {
		return nil, nil
	}
	return &Session{
		UserID:        env.User.ID,
		Email:         env.User.Email,
		Name:          env.User.Name,
		Image:         env.User.Image,
		EmailVerified: env.User.EmailVerified,
		ExpiresAt:     env.Session.ExpiresAt,
	}, nil
}

// CreateOrganization implements OrganizationAPI.
func (b *BetterAuth) CreateOrganization(ctx context.Context, in CreateOrganizationRequest, creds http.Header) (*OrganizationRecord, error) {
	var out OrganizationRecord
	if err := b.post(ctx, pathCreateOrg, in, creds, &out, "Failed to create organization"); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMember implements OrganizationAPI.
func (b *BetterAuth) AddMember(ctx context.Context, in AddMemberRequest, creds http.Header) (*MemberRecord, error) {
	var out MemberRecord
	if err := b.post(ctx, pathAddMember, in, creds, &out, "Failed to add member"); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveMember implements OrganizationAPI.
func (b *BetterAuth) RemoveMember(ctx context.Context, in RemoveMemberRequest, creds http.Header) error {
	return b.post(ctx, pathRemoveMember, in, creds, nil, "Failed to remove member")
}

// post sends a JSON request and decodes a 2xx body into out. Non-2xx answers become upstream errors
// carrying the provider's status and message, falling back to fallbackMsg.
func (b *BetterAuth) post(ctx context.Context, path string, in any, creds http.Header, out any, fallbackMsg string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	copyCredentials(req.Header, creds)
	if req.Header.Get("Authorization") == "" && b.secret != "" {
		req.Header.Set("Authorization", "Bearer "+b.secret)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Error("auth provider unreachable", zap.String("path", path), zap.Error(err))
		return apperr.Upstream(http.StatusInternalServerError, fallbackMsg)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fallbackMsg
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			msg = eb.Message
		}
		b.logger.Warn("auth provider rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return apperr.Upstream(resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func hasCredentials(h http.Header) bool {
	for _, k := range forwarded {
		if h.Get(k) != "" {
			return true
		}
	}
	return false
}

func copyCredentials(dst, src http.Header) {
	for _, k := range forwarded {
		for _, v := range src.Values(k) {
			dst.Add(k, v)
		}
	}
}
