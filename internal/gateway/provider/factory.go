package provider

import (
	"fmt"
	"strings"
	"time"

	"quorum/internal/logger"

	"golang.org/x/time/rate"
)

// Kinds understood by BuildProviders.
const (
	KindOpenAI = "openai"
	KindStatic = "static"
)

// Config describes one configured provider.
type Config struct {
	ID, Kind, APIURL, APIKey, Model, ScriptPath string
	Enabled                                     bool
	Headers                                     map[string]string
	// RateLimitRPS caps outgoing requests per second; 0 disables throttling.
	RateLimitRPS   float64
	RateLimitBurst int
}

// BuildProviders instantiates providers in configuration order. Disabled entries are
// still built so they show up (as disabled) in diagnostics.
func BuildProviders(cfgs []Config, timeout time.Duration) ([]Provider, error) {
	out := make([]Provider, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for i, c := range cfgs {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = strings.TrimSpace(c.Model)
			if id == "" {
				id = fmt.Sprintf("provider_%d", i+1)
			}
			logger.Warnf("provider #%d has no id, using %s", i+1, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate provider id: %s", id)
		}
		seen[id] = true

		switch strings.ToLower(strings.TrimSpace(c.Kind)) {
		case "", KindOpenAI:
			client := &OpenAIChatClient{
				BaseURL:      c.APIURL,
				APIKey:       c.APIKey,
				Model:        c.Model,
				ExtraHeaders: c.Headers,
				Timeout:      timeout,
				Limiter:      newLimiter(c.RateLimitRPS, c.RateLimitBurst),
			}
			out = append(out, NewOpenAIProvider(id, c.Enabled, client))
		case KindStatic:
			p, err := LoadStaticProvider(id, c.Enabled, c.ScriptPath)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", id, c.Kind)
		}
	}
	return out, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
