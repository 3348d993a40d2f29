package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quorum/internal/app"
	"quorum/internal/config"
	"quorum/internal/logger"
	"quorum/internal/tracing"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP consensus service with config hot reload",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.Watch(cfgPath, nil)
	if err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}
	cfg := watcher.Current()
	cleanup, err := setupLogging(cfg.App)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Infof("✓ 配置加载成功（环境=%s，providers=%d/%d）", cfg.App.Env, len(cfg.EnabledProviders()), len(cfg.Providers))

	shutdown, err := startTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdown()

	a, err := app.NewApp(cfg, app.WithWatcher(watcher))
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("运行失败: %w", err)
	}
	return nil
}

func startTracing(cfg config.TracingConfig) (func(), error) {
	flush, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Enabled,
		ServiceName: cfg.ServiceName,
		Output:      cfg.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 tracing 失败: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := flush(ctx); err != nil {
			logger.Warnf("tracing flush failed: %v", err)
		}
	}, nil
}
