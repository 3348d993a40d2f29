// Package logger 是全局 slog 封装：printf 风格的快捷函数 + 结构化事件。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

var (
	level   slog.LevelVar
	current atomic.Pointer[slog.Logger]

	// mu 只保护 sink 的重建，读路径走 current。
	mu   sync.Mutex
	sink = handlerSpec{w: os.Stdout}
)

type handlerSpec struct {
	w    io.Writer
	json bool
}

func (h handlerSpec) build() *slog.Logger {
	w := h.w
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &level}
	if h.json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func init() {
	current.Store(sink.build())
}

func rebuild(edit func(*handlerSpec)) {
	mu.Lock()
	defer mu.Unlock()
	edit(&sink)
	current.Store(sink.build())
}

// SetOutput 替换输出；nil 恢复 stdout。
func SetOutput(w io.Writer) {
	rebuild(func(h *handlerSpec) { h.w = w })
}

// SetStructured 在 text / JSON handler 之间切换。
func SetStructured(enabled bool) {
	rebuild(func(h *handlerSpec) { h.json = enabled })
}

// SetLevel 接受 debug/info/warn/error，其余按 info 处理。
func SetLevel(name string) {
	lv := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	}
	level.Set(lv)
}

func logf(lv slog.Level, format string, v []any) {
	l := current.Load()
	if !l.Enabled(context.Background(), lv) {
		return
	}
	l.Log(context.Background(), lv, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v) }
func Infof(format string, v ...any)  { logf(slog.LevelInfo, format, v) }
func Warnf(format string, v ...any)  { logf(slog.LevelWarn, format, v) }
func Errorf(format string, v ...any) { logf(slog.LevelError, format, v) }

// Event writes a key/value record, e.g. Event(ctx, slog.LevelWarn, "veto", "symbol", s).
// A valid span context in ctx adds trace_id so log lines can be joined with exported spans.
func Event(ctx context.Context, lv slog.Level, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, "trace_id", sc.TraceID().String())
	}
	current.Load().Log(ctx, lv, msg, args...)
}
