package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/logger"

	"golang.org/x/time/rate"
)

// OpenAIChatClient speaks the OpenAI-compatible /chat/completions API
// (OpenAI, DeepSeek, Qwen and friends).
type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Retries on 429/5xx; 0 means the default of 2.
	MaxRetries   int
	ExtraHeaders map[string]string
	HTTPClient   *http.Client
	// Limiter throttles outgoing requests (retries included); nil means unlimited.
	Limiter *rate.Limiter
}

func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// Complete sends one system+user exchange and returns the first choice's content.
func (c *OpenAIChatClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body, err := json.Marshal(map[string]any{"model": c.Model, "messages": messages, "temperature": 0.2})
	if err != nil {
		return "", err
	}

	httpc := c.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	url := c.endpoint()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}
		if attempt == 0 {
			logger.Debugf("[AI] POST %s model=%s headers=%v", url, c.Model, maskHeaders(c.APIKey, c.ExtraHeaders))
		}

		resp, err := httpc.Do(req)
		if err != nil {
			return "", err
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return "", derr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			return r.Choices[0].Message.Content, nil
		}

		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := retryAfter(resp.Header.Get("Retry-After"), attempt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter honours Retry-After seconds, else backs off 0.8s, 1.6s, 3.2s ... capped at 8s.
func retryAfter(header string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	wait := (800 * time.Millisecond) << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

func maskHeaders(apiKey string, extra map[string]string) map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if apiKey != "" {
		out["Authorization"] = "Bearer " + maskSecret(apiKey)
	}
	for k, v := range extra {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "key") || strings.Contains(lk, "token") || strings.Contains(lk, "auth") {
			v = maskSecret(v)
		}
		out[k] = v
	}
	return out
}

func maskSecret(v string) string {
	if len(v) > 4 {
		return "****" + v[len(v)-4:]
	}
	return "****"
}

type chatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIProvider asks a chat model for one decision per symbol and stage.
type OpenAIProvider struct {
	id      string
	enabled bool
	client  chatCompleter
}

var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(id string, enabled bool, client chatCompleter) *OpenAIProvider {
	return &OpenAIProvider{id: id, enabled: enabled, client: client}
}

func (p *OpenAIProvider) Name() string  { return p.id }
func (p *OpenAIProvider) Enabled() bool { return p.enabled && p.client != nil }

func (p *OpenAIProvider) Decide(ctx context.Context, snap decision.Snapshot, stage decision.Stage, symbol string) (decision.Decision, error) {
	system, user := BuildPrompt(snap, stage, symbol)
	logger.LogLLMRequest(p.id, stage.String(), system, user, snap)
	start := time.Now()
	raw, err := p.client.Complete(ctx, system, user)
	logger.LogLLMResponse(p.id, stage.String(), raw)
	if err != nil {
		return decision.Decision{}, fmt.Errorf("%s %s: %w", p.id, stage, err)
	}
	d, err := ParseDecision(raw, p.id)
	if err != nil {
		return decision.Decision{}, fmt.Errorf("%s %s parse: %w", p.id, stage, err)
	}
	logger.Debugf("模型 %s %s %s -> %s(%d) elapsed=%s", p.id, symbol, stage, d.Action(), d.Confidence(), time.Since(start).Truncate(time.Millisecond))
	return d, nil
}
