package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/gateway/notifier"
	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
	"quorum/internal/metrics"
	"quorum/internal/store/decisionlog"
	"quorum/internal/transport/http/api"
)

type AppBuilder struct {
	cfg     *config.Config
	watcher *config.Watcher

	providersFn func(*config.Config) ([]provider.Provider, error)
	auditFn     func(config.AuditConfig) (*decisionlog.Store, error)
	httpFn      func(config.AppConfig, *consensus.Engine, *decisionlog.Store, http.Handler) (*api.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithWatcher 启用配置热更新；cfg 应取自 w.Current()。
func WithWatcher(w *config.Watcher) AppBuilderOption {
	return func(b *AppBuilder) { b.watcher = w }
}

// WithProviders 替换 provider 构建逻辑（测试或嵌入时注入）。
func WithProviders(fn func(*config.Config) ([]provider.Provider, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.providersFn = fn }
}

// WithoutHTTP 不启动 HTTP 服务。
func WithoutHTTP() AppBuilderOption {
	return func(b *AppBuilder) { b.httpFn = nil }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		providersFn: buildProviders,
		auditFn:     buildAuditStore,
		httpFn:      buildHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetStructured(cfg.App.StructuredLogging)
	logger.EnableLLMPayloadDump(cfg.App.LLMDump)

	providers, err := b.providersFn(cfg)
	if err != nil {
		return nil, err
	}

	var recorder *metrics.Recorder
	var monitors consensus.MultiSink
	if cfg.Metrics.Enabled {
		recorder = metrics.New()
		monitors = append(monitors, recorder)
	}
	if alerter := buildAlerter(cfg.Notify); alerter != nil {
		monitors = append(monitors, alerter)
	}
	var monitor consensus.EventSink
	if len(monitors) > 0 {
		monitor = monitors
	}

	var audit *decisionlog.Store
	var sink consensus.EventSink
	if cfg.Audit.Enabled && b.auditFn != nil {
		audit, err = b.auditFn(cfg.Audit)
		if err != nil {
			return nil, fmt.Errorf("初始化审计库失败: %w", err)
		}
		sink = audit
	}

	settings := settingsFromConfig(cfg)
	engine := consensus.NewEngine(consensus.Options{
		Providers: providers,
		Settings:  settings,
		Sink:      sink,
		Monitor:   monitor,
	})
	if recorder != nil {
		engine.Dispatcher().SetBreakerHandler(recorder.RecordBreaker)
	}

	app := &App{
		cfg:     cfg,
		engine:  engine,
		audit:   audit,
		metrics: recorder,
		watcher: b.watcher,
		Summary: newStartupSummary(cfg, settings, engine.Dispatcher().Providers()),
	}

	if b.httpFn != nil {
		var metricsHandler http.Handler
		if recorder != nil {
			metricsHandler = recorder.Handler()
		}
		srv, err := b.httpFn(cfg.App, engine, audit, metricsHandler)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.http = srv
	}

	if b.watcher != nil {
		b.watcher.Subscribe(app.applyConfig)
		b.watcher.OnReloadError(func(err error) {
			if recorder != nil {
				recorder.RecordReload(err)
			}
		})
	}
	return app, nil
}

// applyConfig 热更新：阈值、否决上限、超时与日志级别即时生效；provider 列表与熔断参数需重启。
func (a *App) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.App.LogLevel)
	a.engine.UpdateSettings(settingsFromConfig(cfg))
	if a.metrics != nil {
		a.metrics.RecordReload(nil)
	}
}

func buildProviders(cfg *config.Config) ([]provider.Provider, error) {
	timeout := settingsFromConfig(cfg).ProviderTimeout
	providers, err := provider.BuildProviders(providerConfigs(cfg), timeout)
	if err != nil {
		return nil, err
	}
	enabled := 0
	for _, p := range providers {
		if p.Enabled() {
			enabled++
		}
	}
	if enabled == 0 {
		logger.Warnf("no provider enabled: every decision will report NO_DECISIONS")
	}
	return providers, nil
}

func buildAlerter(cfg config.NotifyConfig) *notifier.Alerter {
	if !cfg.Telegram.Enabled {
		return nil
	}
	tg := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	return notifier.NewAlerter(tg, cfg.OnVeto, time.Duration(cfg.CooldownSeconds)*time.Second)
}

func buildAuditStore(cfg config.AuditConfig) (*decisionlog.Store, error) {
	return decisionlog.New(cfg.Path)
}

func buildHTTPServer(cfg config.AppConfig, engine *consensus.Engine, audit *decisionlog.Store, metricsHandler http.Handler) (*api.Server, error) {
	sc := api.ServerConfig{
		Addr:    cfg.HTTPAddr,
		Engine:  engine,
		Metrics: metricsHandler,
	}
	if audit != nil {
		sc.Events = audit
	}
	return api.NewServer(sc)
}
