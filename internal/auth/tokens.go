package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"idhub.org/internal/obs"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenPair carries the access/refresh tokens issued for one subject.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues, verifies, refreshes, and invalidates bearer tokens.
// It holds no mutable state beyond configuration and is safe for concurrent use.
type TokenService struct {
	codec      *Codec
	revoked    RevocationStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenServiceOption configures TokenService behavior.
type TokenServiceOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenServiceOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenServiceOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
			s.codec.now = fn
		}
	}
}

// NewTokenService constructs a TokenService over a codec and revocation store.
func NewTokenService(codec *Codec, revoked RevocationStore, opts ...TokenServiceOption) (*TokenService, error) {
	if codec == nil {
		return nil, errors.New("token codec is required")
	}
	if revoked == nil {
		return nil, errors.New("revocation store is required")
	}
	svc := &TokenService{
		codec:      codec,
		revoked:    revoked,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssuePair mints an access and a refresh token for the same subject.
func (s *TokenService) IssuePair(userID string) (TokenPair, error) {
	now := s.now().UTC()
	access, err := s.codec.Mint(userID, TokenKindAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Mint(userID, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	obs.TokenIssued(string(TokenKindAccess))
	obs.TokenIssued(string(TokenKindRefresh))
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

// Verify decodes the token and returns its subject. Expiry is checked before
// revocation, so an expired token reports ErrExpired regardless of revocation
// state. The subject is not resolved against the directory here; that is the
// caller's responsibility.
func (s *TokenService) Verify(ctx context.Context, token string, kind TokenKind) (string, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		obs.TokenVerifyFailed("malformed")
		return "", err
	}
	if claims.Kind() != kind {
		obs.TokenVerifyFailed("kind_mismatch")
		return "", fmt.Errorf("%w: token kind mismatch", ErrMalformed)
	}
	if s.now().After(claims.ExpiresAt.Time) {
		obs.TokenVerifyFailed("expired")
		return "", ErrExpired
	}
	revoked, err := s.revoked.Contains(ctx, token)
	if err != nil {
		return "", err
	}
	if revoked {
		obs.TokenVerifyFailed("revoked")
		return "", ErrRevoked
	}
	return claims.Subject, nil
}

// Refresh verifies a refresh token and mints a new access token for the same
// subject. The refresh token itself is not rotated; callers keep reusing it
// until it expires or is revoked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	subject, err := s.Verify(ctx, refreshToken, TokenKindRefresh)
	if err != nil {
		return "", err
	}
	access, err := s.codec.Mint(subject, TokenKindAccess, s.accessTTL)
	if err != nil {
		return "", err
	}
	obs.TokenIssued(string(TokenKindAccess))
	return access, nil
}

// Invalidate adds the token to the revocation store for its remaining
// lifetime. Undecodable or already expired tokens are ignored. Transient
// store failures are logged and swallowed so logout never fails the caller.
func (s *TokenService) Invalidate(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	if err := s.revoked.Add(ctx, token, remaining); err != nil {
		obs.LogEvent("auth.token.invalidate_failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	obs.TokenRevoked()
	return nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }
