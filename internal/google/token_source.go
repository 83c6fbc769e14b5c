package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// Refresh results reported to a RefreshObserver.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshExpired = "expired"
)

// TokenSourceOption configures NewTokenSource.
type TokenSourceOption func(*persistingTokenSource)

// WithRefreshObserver registers fn to be called after every token refresh
// attempt with one of RefreshSuccess, RefreshFailure or RefreshExpired.
func WithRefreshObserver(fn func(result string)) TokenSourceOption {
	return func(s *persistingTokenSource) {
		s.observe = fn
	}
}

// NewTokenSource returns a token source seeded from the cache. Tokens are
// refreshed automatically and every new token is written back to the cache.
func NewTokenSource(ctx context.Context, conf *oauth2.Config, cache *TokenCache, opts ...TokenSourceOption) (oauth2.TokenSource, error) {
	tok, err := cache.Load()
	if err != nil {
		return nil, err
	}

	s := &persistingTokenSource{
		base:    conf.TokenSource(ctx, tok),
		cache:   cache,
		current: tok.AccessToken,
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// persistingTokenSource writes refreshed tokens back to the cache and turns
// a rejected refresh token into ErrReauthRequired.
type persistingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	cache   *TokenCache
	current string
	observe func(result string)
}

// Token implements oauth2.TokenSource.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			s.observe(RefreshExpired)
			slog.Warn("token refresh rejected, deleting cached token", "path", s.cache.Path(), "error_code", re.ErrorCode)
			if delErr := s.cache.Delete(); delErr != nil {
				return nil, errors.Join(fmt.Errorf("%w: %v", ErrReauthRequired, err), delErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		s.observe(RefreshFailure)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if tok.AccessToken != s.current {
		s.observe(RefreshSuccess)
		if err := s.cache.Save(tok); err != nil {
			return nil, err
		}
		s.current = tok.AccessToken
	}
	return tok, nil
}
