package config

import (
	"fmt"
	"sync"

	"quorum/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener 在配置重新加载成功后被调用。
type ChangeListener func(*Config)

// Watcher 持有当前配置，并在主文件或任一 include 文件变化时重新加载。
// 重新加载失败时保留旧配置。
type Watcher struct {
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []ChangeListener
	onError   func(error)
}

// Watch 加载 path 并开始监听 FS 事件；fn 可为 nil。
func Watch(path string, fn ChangeListener) (*Watcher, error) {
	cfg, files, err := load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, current: cfg}
	if fn != nil {
		w.listeners = append(w.listeners, fn)
	}
	for _, file := range files {
		v := viper.New()
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("watch config failed (%s): %w", file, err)
		}
		v.OnConfigChange(func(evt fsnotify.Event) {
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				return
			}
			if err := w.Reload(); err != nil {
				logger.Errorf("config reload failed (%s): %v", evt.Name, err)
				w.reportError(err)
			}
		})
		v.WatchConfig()
	}
	return w, nil
}

// Current 返回最近一次成功加载的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe 注册监听器。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// OnReloadError 注册文件变化触发的重新加载失败回调。
func (w *Watcher) OnReloadError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

func (w *Watcher) reportError(err error) {
	w.mu.RLock()
	fn := w.onError
	w.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Path 返回主配置文件路径。
func (w *Watcher) Path() string { return w.path }

// Reload 重新读取配置并通知监听器。
func (w *Watcher) Reload() error {
	cfg, _, err := load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = cfg
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	logger.Infof("config reloaded: %s", w.path)
	for _, fn := range listeners {
		notifyListener(fn, cfg)
	}
	return nil
}

func notifyListener(fn ChangeListener, cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("config listener panic: %v", r)
		}
	}()
	fn(cfg)
}
