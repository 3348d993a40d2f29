package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"quorum/internal/config"
	"quorum/internal/logger"
)

// setupLogging 让普通日志同时写 stdout 和 log_path，LLM 原文按需写 llm_log_path。
// 返回的 cleanup 关闭打开的文件。
func setupLogging(cfg config.AppConfig) (func(), error) {
	var opened []io.Closer
	cleanup := func() {
		for _, c := range opened {
			_ = c.Close()
		}
	}

	logger.SetLLMWriter(nil)
	if f, err := openAppend(cfg.LogPath); err != nil {
		return nil, fmt.Errorf("初始化日志文件失败: %w", err)
	} else if f != nil {
		opened = append(opened, f)
		mw := io.MultiWriter(os.Stdout, f)
		log.SetOutput(mw)
		logger.SetOutput(mw)
	}
	if !cfg.LLMDump {
		return cleanup, nil
	}
	f, err := openAppend(cfg.LLMLog)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("初始化 LLM 日志失败: %w", err)
	}
	if f != nil {
		opened = append(opened, f)
		logger.SetLLMWriter(f)
	}
	return cleanup, nil
}

// openAppend 以追加方式打开文件并创建父目录；空路径返回 nil。
func openAppend(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
