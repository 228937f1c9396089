package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"DividendSentinel/internal/infra"
)

// DefaultBaseURL is the J-Quants v1 API root.
const DefaultBaseURL = "https://api.jquants.com/v1"

// JQuantsAuth implements Authenticator over HTTPS.
type JQuantsAuth struct {
	BaseURL string
	Client  *http.Client
	Limiter infra.Limiter
	Retry   infra.RetryPolicy
	Clock   infra.Clock
}

// NewJQuantsAuth creates an authenticator sharing the data client's limiter.
func NewJQuantsAuth(baseURL string, client *http.Client, limiter infra.Limiter, retry infra.RetryPolicy) *JQuantsAuth {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limiter == nil {
		limiter = infra.Unlimited{}
	}
	return &JQuantsAuth{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Limiter: limiter,
		Retry:   retry,
		Clock:   infra.SystemClock{},
	}
}

func (a *JQuantsAuth) RefreshToken(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(map[string]string{
		"mailaddress": creds.Email,
		"password":    creds.Password,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := a.post(ctx, "auth_user", a.BaseURL+"/token/auth_user", body, &resp); err != nil {
		return "", err
	}
	if resp.RefreshToken == "" {
		return "", &AuthenticationError{Step: "auth_user", Detail: "response carried no refreshToken"}
	}
	return resp.RefreshToken, nil
}

func (a *JQuantsAuth) IDToken(ctx context.Context, refreshToken string) (string, error) {
	u := a.BaseURL + "/token/auth_refresh?refreshtoken=" + url.QueryEscape(refreshToken)
	var resp struct {
		IDToken string `json:"idToken"`
	}
	if err := a.post(ctx, "auth_refresh", u, nil, &resp); err != nil {
		return "", err
	}
	if resp.IDToken == "" {
		return "", &AuthenticationError{Step: "auth_refresh", Detail: "response carried no idToken"}
	}
	return resp.IDToken, nil
}

func (a *JQuantsAuth) post(ctx context.Context, step, u string, body []byte, out interface{}) error {
	return a.Retry.Do(ctx, a.Clock, func(ctx context.Context) error {
		if err := a.Limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := a.Client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s read body: %w", step, err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%s decode: %w", step, err)
			}
			return nil
		case resp.StatusCode == http.StatusBadRequest,
			resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden:
			return &AuthenticationError{Step: step, Status: resp.StatusCode, Detail: apiMessage(data)}
		default:
			return &infra.StatusError{
				Status:     resp.StatusCode,
				Endpoint:   step,
				Body:       data,
				RetryAfter: infra.ParseRetryAfter(resp.Header),
			}
		}
	})
}

func apiMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &m); err == nil && m.Message != "" {
		return m.Message
	}
	return strings.TrimSpace(string(body))
}
