package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"DividendSentinel/internal/infra"
)

const telegramAPI = "https://api.telegram.org"

// Telegram caps a message at 4096 characters.
const maxMessageRunes = 4096

// TelegramNotifier pushes the weekly summary through the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	Retry    infra.RetryPolicy
	Clock    infra.Clock
}

// NewTelegramNotifier creates a notifier that shares the given HTTP client,
// so the configured proxy applies.
func NewTelegramNotifier(botToken, chatID string, client *http.Client, retry infra.RetryPolicy) *TelegramNotifier {
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  telegramAPI,
		Client:   client,
		Retry:    retry,
	}
}

// Send posts one HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.BotToken)
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.ChatID,
		"text":                     truncate(text, maxMessageRunes),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return &infra.StatusError{
			Status:     resp.StatusCode,
			Endpoint:   "telegram sendMessage",
			Body:       respBody,
			RetryAfter: infra.ParseRetryAfter(resp.Header),
		}
	}
	return nil
}

// SendWithRetry retries 429 and 5xx answers with the notifier's backoff policy.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	attempt := 0
	return t.Retry.Do(ctx, t.Clock, func(ctx context.Context) error {
		attempt++
		err := t.Send(ctx, text)
		if err != nil && attempt < t.Retry.MaxAttempts {
			log.Printf("[WARN] Telegram send failed (attempt %d/%d): %v", attempt, t.Retry.MaxAttempts, err)
		}
		return err
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
