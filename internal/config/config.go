// Package config 配置加载：支持 include 合并、默认值回填与启动期校验。
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取主配置及其 include 链，后读的文件覆盖先读的键。
// 结构体 tag 用 toml 命名，文件本身是 YAML；viper 的键匹配不区分格式。
func Load(path string) (*Config, error) {
	files, err := expandIncludes(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeFile(v, file); err != nil {
			return nil, fmt.Errorf("读取配置文件失败 (%s): %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 记录文件里显式出现过的键，默认值只回填未出现的
	set := make(keySet)
	flattenKeys("", v.AllSettings(), set)
	cfg.applyDefaults(set)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	one := viper.New()
	one.SetConfigFile(path)
	if err := one.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(one.AllSettings())
}

// expandIncludes 深度优先展开 include 链：被包含的文件排在前面，
// 主文件最后读，保证主文件的键最终生效。
func expandIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("配置路径不能为空")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	inFlight := make(map[string]bool)
	files, err := walkIncludes(abs, seen, inFlight)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []string{abs}, nil
	}
	return files, nil
}

func walkIncludes(path string, seen, inFlight map[string]bool) ([]string, error) {
	path = filepath.Clean(path)
	if inFlight[path] {
		return nil, fmt.Errorf("include 出现环: %s", path)
	}
	if seen[path] {
		return nil, nil
	}
	inFlight[path] = true

	includes, err := readIncludeList(path)
	if err != nil {
		return nil, fmt.Errorf("解析 include 失败 (%s): %w", path, err)
	}

	dir := filepath.Dir(path)
	var ordered []string
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		sub, err := walkIncludes(inc, seen, inFlight)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}

	delete(inFlight, path)
	seen[path] = true
	return append(ordered, path), nil
}

func readIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	switch val := raw.(type) {
	case []string:
		return trimNonEmpty(val), nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include 只支持字符串")
			}
			out = append(out, str)
		}
		return trimNonEmpty(out), nil
	default:
		return nil, fmt.Errorf("include 必须是字符串数组")
	}
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// flattenKeys 把嵌套 settings 摊平成 "a.b.c" 路径集合。
// 数组节点本身记为一个键（例如 market.sources）。
func flattenKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			flattenKeys(key, child, dest)
		}
	case map[any]any:
		for k, child := range val {
			str, ok := k.(string)
			if !ok {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(str))
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			flattenKeys(key, child, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			flattenKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
