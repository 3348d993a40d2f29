package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取主配置（支持 include 列表），应用默认值并校验。
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

// load 额外返回参与合并的文件列表（include 在前，主文件最后），供 Watcher 监听。
func load(path string) (*Config, []string, error) {
	files, err := resolveIncludes(path)
	if err != nil {
		return nil, nil, err
	}
	merged := viper.New()
	merged.SetConfigType("yaml")
	for _, file := range files {
		part := viper.New()
		part.SetConfigFile(file)
		if err := part.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := merged.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}
	cfg, err := decode(merged)
	if err != nil {
		return nil, nil, err
	}
	cfg.resolvePaths(filepath.Dir(files[len(files)-1]))
	cfg.expandSecrets()
	if err := validate(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, files, nil
}

// decode 解码合并后的设置；显式出现过的键不会被默认值覆盖（允许写 0 / false）。
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	keys := make(keySet)
	keys.collect("", v.AllSettings())
	cfg.applyDefaults(keys)
	return &cfg, nil
}

// resolvePaths 将相对的 script_path 解析为相对主配置文件所在目录。
func (c *Config) resolvePaths(dir string) {
	for i := range c.Providers {
		p := strings.TrimSpace(c.Providers[i].ScriptPath)
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		c.Providers[i].ScriptPath = filepath.Join(dir, p)
	}
}

// expandSecrets 展开密钥字段中的 ${VAR}，便于把 key 放在环境变量或 .env 中。
func (c *Config) expandSecrets() {
	for i := range c.Providers {
		p := &c.Providers[i]
		p.APIKey = os.ExpandEnv(p.APIKey)
		for k, v := range p.Headers {
			p.Headers[k] = os.ExpandEnv(v)
		}
	}
	c.Notify.Telegram.BotToken = os.ExpandEnv(c.Notify.Telegram.BotToken)
	c.Notify.Telegram.ChatID = os.ExpandEnv(c.Notify.Telegram.ChatID)
}
