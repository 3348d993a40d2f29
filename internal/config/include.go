package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// includeWalker 深度优先展开 include，被引用的文件排在引用方之前。
type includeWalker struct {
	done   map[string]bool
	active map[string]bool
	order  []string
}

func resolveIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &includeWalker{done: map[string]bool{}, active: map[string]bool{}}
	if err := w.visit(abs); err != nil {
		return nil, err
	}
	return w.order, nil
}

func (w *includeWalker) visit(path string) error {
	path = filepath.Clean(path)
	switch {
	case w.active[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case w.done[path]:
		return nil
	}
	w.active[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(inc); err != nil {
			return err
		}
	}
	delete(w.active, path)
	w.done[path] = true
	w.order = append(w.order, path)
	return nil
}

func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	if _, ok := raw.(string); ok {
		return nil, fmt.Errorf("include must be a string array")
	}
	items, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("include must be a string array: %w", err)
	}
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// collect 记录 settings 中出现过的叶子路径（小写、以 . 分隔）。
func (k keySet) collect(prefix string, node any) {
	switch val := node.(type) {
	case map[string]any, map[any]any:
		for key, child := range cast.ToStringMap(val) {
			key = strings.ToLower(strings.TrimSpace(key))
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			k.collect(key, child)
		}
	default:
		k.mark(prefix)
	}
}
