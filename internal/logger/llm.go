package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// llmDump 把 provider 的原始 prompt / 回复写到独立文件，便于事后复盘。
var (
	llmMu      sync.Mutex
	llmOut     io.Writer
	llmPayload atomic.Bool
)

// SetLLMWriter routes provider prompt/response dumps to w; nil disables them.
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	llmOut = w
	llmMu.Unlock()
}

// EnableLLMPayloadDump 控制请求记录是否附带快照 payload。
func EnableLLMPayloadDump(enabled bool) { llmPayload.Store(enabled) }

// LogLLMRequest 记录一次请求；payload 仅在开启 dump 时序列化。
func LogLLMRequest(provider, stage, systemPrompt, userPrompt string, payload any) {
	sections := [][2]string{{"SYSTEM", systemPrompt}, {"USER", userPrompt}}
	if payload != nil && llmPayload.Load() {
		if raw, err := json.MarshalIndent(payload, "", "  "); err == nil {
			sections = append(sections, [2]string{"PAYLOAD", string(raw)})
		}
	}
	writeLLM("request", provider, stage, sections)
}

func LogLLMResponse(provider, stage, raw string) {
	writeLLM("response", provider, stage, [][2]string{{"RAW", raw}})
}

func writeLLM(kind, provider, stage string, sections [][2]string) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if llmOut == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [LLM][%s][%s][%s]\n", time.Now().Format(time.DateTime), kind, provider, stage)
	for _, sec := range sections {
		body := strings.TrimRight(sec[1], "\n")
		fmt.Fprintf(&b, "--- %s ---\n%s\n", sec[0], body)
	}
	b.WriteString("=====\n")
	_, _ = io.WriteString(llmOut, b.String())
}
