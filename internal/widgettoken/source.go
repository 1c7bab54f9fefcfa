// Package widgettoken obtains the signed widget token attached to
// booking submissions to prove they originate from an authorized embed
// context.
package widgettoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BotCoder254/calemly-go-sdk/pkg/logging"
)

// refreshMargin re-fetches a token slightly before its expiry so a
// submission never races the deadline.
const refreshMargin = 30 * time.Second

// Issuer is the API-client subset the source depends on.
type Issuer interface {
	IssueWidgetToken(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// Provider is a host-supplied token callback. When set it takes
// precedence over the automatic issuer.
type Provider func(ctx context.Context) (string, error)

// Source hands out a valid signed widget token, caching the issued one
// until shortly before it expires.
type Source struct {
	issuer   Issuer
	provider Provider
	logger   *logging.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// New creates a Source. Either issuer or provider may be nil, not both.
func New(issuer Issuer, provider Provider, logger *logging.Logger) *Source {
	if logger == nil {
		logger = logging.Default()
	}
	return &Source{
		issuer:   issuer,
		provider: provider,
		logger:   logger.Component("widgettoken"),
		now:      time.Now,
	}
}

// Token returns a signed widget token, fetching or refreshing as needed.
func (s *Source) Token(ctx context.Context) (string, error) {
	if s.provider != nil {
		token, err := s.provider(ctx)
		if err != nil {
			return "", fmt.Errorf("widgettoken: provider: %w", err)
		}
		return token, nil
	}
	if s.issuer == nil {
		return "", fmt.Errorf("widgettoken: no issuer configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expiresAt.IsZero() || s.now().Add(refreshMargin).Before(s.expiresAt)) {
		return s.token, nil
	}

	token, expiresAt, err := s.issuer.IssueWidgetToken(ctx)
	if err != nil {
		return "", err
	}
	if expiresAt.IsZero() {
		expiresAt = expiryFromJWT(token)
	}
	s.token = token
	s.expiresAt = expiresAt
	s.logger.Debug("widget token refreshed", "expires_at", expiresAt)
	return token, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (s *Source) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// expiryFromJWT pulls the exp claim without verifying the signature.
// The widget holds no signing key; the claim only schedules refresh,
// the backend still verifies the token on submission.
func expiryFromJWT(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
