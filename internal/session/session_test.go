package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"DividendSentinel/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type fakeAuth struct {
	logins   atomic.Int32
	refresh  atomic.Int32
	delay    time.Duration
	rejectID bool
}

func (f *fakeAuth) RefreshToken(_ context.Context, creds Credentials) (string, error) {
	f.logins.Add(1)
	if creds.Password != "secret" {
		return "", &AuthenticationError{Step: "auth_user", Status: 400, Detail: "bad password"}
	}
	return "refresh-new", nil
}

func (f *fakeAuth) IDToken(_ context.Context, refreshToken string) (string, error) {
	n := f.refresh.Add(1)
	time.Sleep(f.delay)
	if f.rejectID && refreshToken == "refresh-old" {
		return "", &AuthenticationError{Step: "auth_refresh", Status: 400, Detail: "expired"}
	}
	return refreshToken + "-id-" + string(rune('0'+n)), nil
}

func TestEnsureValid_KeepsTokenOutsideMargin(t *testing.T) {
	m := NewManager(&fakeAuth{}, Credentials{Email: "a", Password: "secret"}, time.Minute, infra.NewFakeClock(t0))
	tok := Token{IDToken: "x", ExpiresAt: t0.Add(2 * time.Minute)}
	got, err := m.EnsureValid(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestEnsureValid_RefreshesInsideMargin(t *testing.T) {
	auth := &fakeAuth{}
	m := NewManager(auth, Credentials{Email: "a", Password: "secret"}, time.Minute, infra.NewFakeClock(t0))
	tok := Token{IDToken: "x", ExpiresAt: t0.Add(30 * time.Second)}
	got, err := m.EnsureValid(context.Background(), tok)
	require.NoError(t, err)
	assert.NotEqual(t, "x", got.IDToken)
	assert.Equal(t, t0.Add(IDTokenTTL), got.ExpiresAt)
	assert.EqualValues(t, 1, auth.logins.Load())
}

func TestEnsureValid_SingleRefreshUnderConcurrency(t *testing.T) {
	auth := &fakeAuth{delay: 20 * time.Millisecond}
	m := NewManager(auth, Credentials{RefreshToken: "refresh-old"}, time.Minute, infra.NewFakeClock(t0))
	expired := Token{IDToken: "stale", ExpiresAt: t0.Add(-time.Hour)}

	var wg sync.WaitGroup
	tokens := make([]string, 32)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.EnsureValid(context.Background(), expired)
			assert.NoError(t, err)
			tokens[i] = tok.IDToken
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, auth.refresh.Load())
	assert.EqualValues(t, 0, auth.logins.Load())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

// gatedAuth holds the ID token exchange until release is closed.
type gatedAuth struct {
	fakeAuth
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedAuth) IDToken(ctx context.Context, refreshToken string) (string, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.fakeAuth.IDToken(ctx, refreshToken)
}

func TestAcquireToken_SharedRefreshOutlivesFirstCaller(t *testing.T) {
	auth := &gatedAuth{started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(auth, Credentials{RefreshToken: "refresh-old"}, time.Minute, infra.NewFakeClock(t0))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.AcquireToken(first)
		firstErr <- err
	}()
	<-auth.started

	second := make(chan Token, 1)
	go func() {
		tok, err := m.AcquireToken(context.Background())
		assert.NoError(t, err)
		second <- tok
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(auth.release)

	tok := <-second
	assert.Equal(t, "refresh-old-id-1", tok.IDToken)
	assert.Equal(t, int32(1), auth.refresh.Load())
}

func TestAcquireToken_FallsBackToLoginWhenRefreshRejected(t *testing.T) {
	auth := &fakeAuth{rejectID: true}
	m := NewManager(auth, Credentials{Email: "a", Password: "secret", RefreshToken: "refresh-old"}, 0, infra.NewFakeClock(t0))
	tok, err := m.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tok.IDToken, "refresh-new")
	assert.EqualValues(t, 1, auth.logins.Load())
}

func TestAcquireToken_RejectedCredentials(t *testing.T) {
	auth := &fakeAuth{}
	m := NewManager(auth, Credentials{Email: "a", Password: "wrong"}, 0, infra.NewFakeClock(t0))
	_, err := m.AcquireToken(context.Background())
	var ae *AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "auth_user", ae.Step)
}

func TestInvalidate_ForcesReauth(t *testing.T) {
	auth := &fakeAuth{}
	m := NewManager(auth, Credentials{RefreshToken: "r"}, 0, infra.NewFakeClock(t0))
	first, err := m.Token(context.Background())
	require.NoError(t, err)
	m.Invalidate(first)
	second, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, auth.refresh.Load())
}

func TestJQuantsAuth_TwoStepExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token/auth_user":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"message":"'mailaddress' or 'password' is incorrect."}`))
				return
			}
			_, _ = w.Write([]byte(`{"refreshToken":"rt"}`))
		case "/token/auth_refresh":
			assert.Equal(t, "rt", r.URL.Query().Get("refreshtoken"))
			_, _ = w.Write([]byte(`{"idToken":"id"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	auth := NewJQuantsAuth(srv.URL, srv.Client(), nil, infra.DefaultRetryPolicy())
	auth.Clock = infra.NewFakeClock(t0)

	rt, err := auth.RefreshToken(context.Background(), Credentials{Email: "a@b", Password: "secret"})
	require.NoError(t, err)
	id, err := auth.IDToken(context.Background(), rt)
	require.NoError(t, err)
	assert.Equal(t, "id", id)

	_, err = auth.RefreshToken(context.Background(), Credentials{Email: "a@b", Password: "nope"})
	var ae *AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Contains(t, ae.Detail, "incorrect")
}

func TestJQuantsAuth_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"idToken":"id"}`))
	}))
	defer srv.Close()

	auth := NewJQuantsAuth(srv.URL, srv.Client(), nil, infra.DefaultRetryPolicy())
	auth.Clock = infra.NewFakeClock(t0)
	id, err := auth.IDToken(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "id", id)
	assert.EqualValues(t, 3, calls.Load())
}
