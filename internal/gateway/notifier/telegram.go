package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram 推送到指定群/频道，失败最多重试 3 次。
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	Backoff  time.Duration
}

var _ TextNotifier = (*Telegram)(nil)

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  defaultTelegramAPI,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Backoff:  time.Second,
	}
}

func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram 配置不完整")
	}
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * t.Backoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return lastErr
}
