// Package symbol canonicalizes trading-pair names so that "btc/usdt", "BTC-USDT"
// and "BTC/USDT:USDT" share one rate-limit bucket and one result key.
package symbol

import (
	"slices"
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

// String renders the canonical concatenated form (BTCUSDT).
func (s Symbol) String() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// quotes 按长度降序，FDUSD 先于 USD 结尾的短报价币匹配。
var quotes = func() []string {
	q := []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "BTC", "ETH", "BNB"}
	slices.SortStableFunc(q, func(a, b string) int { return len(b) - len(a) })
	return q
}()

// Parse splits a pair into base and quote; unknown shapes return the zero Symbol.
// A ":SETTLE" suffix (perpetual notation) is dropped.
func Parse(raw string) Symbol {
	s, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(raw)), ":")
	if s == "" {
		return Symbol{}
	}
	if i := strings.IndexAny(s, "/-_"); i >= 0 {
		base, quote := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		if base == "" || quote == "" {
			return Symbol{}
		}
		return Symbol{Base: base, Quote: quote}
	}
	for _, q := range quotes {
		if base, ok := strings.CutSuffix(s, q); ok && base != "" {
			return Symbol{Base: base, Quote: q}
		}
	}
	return Symbol{}
}

// Canonical returns the concatenated upper-case pair. Inputs that do not parse
// are only trimmed and upper-cased.
func Canonical(s string) string {
	if c := Parse(s).String(); c != "" {
		return c
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// CanonicalList canonicalizes, drops empties and de-duplicates, keeping first-seen order.
func CanonicalList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if c := Canonical(s); c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
