// Package session owns the J-Quants token lifecycle for one process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"DividendSentinel/internal/infra"

	"golang.org/x/sync/singleflight"
)

const (
	IDTokenTTL      = 24 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
	DefaultMargin   = 60 * time.Second

	// authTimeout bounds one shared token exchange.
	authTimeout = 2 * time.Minute
)

// Credentials identify the API account. A refresh token alone is enough
// until it expires.
type Credentials struct {
	Email        string
	Password     string
	RefreshToken string
}

func (c Credentials) hasLogin() bool { return c.Email != "" && c.Password != "" }

// Token is a bearer ID token and its expiry.
type Token struct {
	IDToken   string
	ExpiresAt time.Time
}

// Valid reports whether the token outlives now by at least margin.
func (t Token) Valid(now time.Time, margin time.Duration) bool {
	return t.IDToken != "" && t.ExpiresAt.After(now.Add(margin))
}

// AuthenticationError means the remote service rejected the credentials.
// It is never retried.
type AuthenticationError struct {
	Step   string
	Status int
	Detail string
}

func (e *AuthenticationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed at %s (status %d): %s", e.Step, e.Status, e.Detail)
	}
	return fmt.Sprintf("authentication failed at %s: %s", e.Step, e.Detail)
}

// Authenticator performs the two J-Quants token exchanges.
type Authenticator interface {
	RefreshToken(ctx context.Context, creds Credentials) (string, error)
	IDToken(ctx context.Context, refreshToken string) (string, error)
}

// Manager hands out a valid ID token to many concurrent readers and
// serializes re-authentication so only one exchange is in flight.
type Manager struct {
	auth   Authenticator
	creds  Credentials
	margin time.Duration
	clock  infra.Clock

	mu         sync.RWMutex
	current    Token
	refresh    string
	refreshExp time.Time

	group singleflight.Group
}

// NewManager creates a Manager. Nothing is fetched until the first token request.
func NewManager(auth Authenticator, creds Credentials, margin time.Duration, clock infra.Clock) *Manager {
	if margin <= 0 {
		margin = DefaultMargin
	}
	if clock == nil {
		clock = infra.SystemClock{}
	}
	return &Manager{
		auth:    auth,
		creds:   creds,
		margin:  margin,
		clock:   clock,
		refresh: creds.RefreshToken,
	}
}

// AcquireToken returns the current token when still valid, otherwise
// authenticates and stores a fresh one.
// The exchange is shared by every waiting caller, so it runs detached from
// the first caller's deadline; each caller still stops waiting on its own.
func (m *Manager) AcquireToken(ctx context.Context) (Token, error) {
	ch := m.group.DoChan("auth", func() (interface{}, error) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), authTimeout)
		defer cancel()
		return m.authenticate(actx)
	})
	select {
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// EnsureValid returns tok unchanged while it is valid beyond the safety
// margin, otherwise the token another caller already refreshed, otherwise a
// freshly acquired one.
func (m *Manager) EnsureValid(ctx context.Context, tok Token) (Token, error) {
	now := m.clock.Now()
	if tok.Valid(now, m.margin) {
		return tok, nil
	}
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur.Valid(now, m.margin) {
		return cur, nil
	}
	return m.AcquireToken(ctx)
}

// Token returns a valid ID token string for an Authorization header.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	tok, err := m.EnsureValid(ctx, cur)
	if err != nil {
		return "", err
	}
	return tok.IDToken, nil
}

// Invalidate drops idToken if it is still the current one, forcing the next
// caller to re-authenticate.
func (m *Manager) Invalidate(idToken string) {
	m.mu.Lock()
	if m.current.IDToken == idToken {
		m.current = Token{}
	}
	m.mu.Unlock()
}

func (m *Manager) authenticate(ctx context.Context) (Token, error) {
	now := m.clock.Now()

	m.mu.RLock()
	cur, refresh, refreshExp := m.current, m.refresh, m.refreshExp
	m.mu.RUnlock()
	if cur.Valid(now, m.margin) {
		return cur, nil
	}

	if refresh != "" && (refreshExp.IsZero() || now.Before(refreshExp)) {
		id, err := m.auth.IDToken(ctx, refresh)
		if err == nil {
			return m.store(refresh, refreshExp, id, now), nil
		}
		var ae *AuthenticationError
		if !errors.As(err, &ae) || !m.creds.hasLogin() {
			return Token{}, err
		}
		log.Printf("[WARN] refresh token rejected, logging in again: %v", err)
	}

	if !m.creds.hasLogin() {
		return Token{}, &AuthenticationError{Step: "auth_user", Detail: "no email/password or refresh token configured"}
	}
	refresh, err := m.auth.RefreshToken(ctx, m.creds)
	if err != nil {
		return Token{}, err
	}
	id, err := m.auth.IDToken(ctx, refresh)
	if err != nil {
		return Token{}, err
	}
	return m.store(refresh, now.Add(RefreshTokenTTL), id, now), nil
}

func (m *Manager) store(refresh string, refreshExp time.Time, id string, now time.Time) Token {
	tok := Token{IDToken: id, ExpiresAt: now.Add(IDTokenTTL)}
	m.mu.Lock()
	m.refresh = refresh
	m.refreshExp = refreshExp
	m.current = tok
	m.mu.Unlock()
	log.Printf("[INFO] J-Quants id token acquired, valid until %s", tok.ExpiresAt.Format(time.RFC3339))
	return tok
}
