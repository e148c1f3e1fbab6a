// Package profile 风险预设：把 guard/sizing/cooldown 的一组参数打包成
// 可热切换的预设，文件改动即时生效，不用重启进程。
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"petrel/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Profile 一套风险参数预设。字段为指针以区分"未设置（沿用主配置）"
// 与"显式归零（关闭该检查）"。
type Profile struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`

	BaseRiskPct         *float64 `yaml:"base_risk_pct"`
	StrictReduction     *float64 `yaml:"strict_reduction"`
	MaxNotional         *float64 `yaml:"max_notional"`
	MaxDailyDrawdownPct *float64 `yaml:"max_daily_drawdown_pct"`
	MaxConsecutiveSLs   *int     `yaml:"max_consecutive_sls"`
	MinAvailableMargin  *float64 `yaml:"min_available_margin"`
	CooldownBaseSeconds *int     `yaml:"cooldown_base_seconds"`
}

type fileConfig struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Snapshot 当前生效的预设集合。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// ChangeListener 在 registry 重载后触发。
type ChangeListener func(Snapshot)

// Registry 管理风险预设文件的加载、校验与热更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// profileSchema 预设文件的结构校验。数值越界在加载期挡掉，
// 跑到一半才发现风险参数非法的代价太高。
const profileSchema = `{
  "type": "object",
  "properties": {
    "base_risk_pct":          {"type": "number", "exclusiveMinimum": 0, "maximum": 0.1},
    "strict_reduction":       {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "max_notional":           {"type": "number", "minimum": 0},
    "max_daily_drawdown_pct": {"type": "number", "minimum": 0, "exclusiveMaximum": 1},
    "max_consecutive_sls":    {"type": "integer", "minimum": 0},
    "min_available_margin":   {"type": "number", "minimum": 0},
    "cooldown_base_seconds":  {"type": "integer", "minimum": 0}
  }
}`

var compiledSchema = jsonschema.MustCompileString("profile.json", profileSchema)

// NewRegistry 读取预设文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profile reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前预设集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Resolve 返回指定 ID 的预设。
func (r *Registry) Resolve(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Profiles[strings.TrimSpace(id)]
	return p, ok
}

// Subscribe 注册热更新回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readProfileFile(r.path)
	if err != nil {
		return err
	}
	profiles := make(map[string]Profile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = strings.TrimSpace(name)
		}
		if err := validateProfile(p); err != nil {
			return fmt.Errorf("profile %s invalid: %w", p.ID, err)
		}
		profiles[p.ID] = p
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	logger.Infof("profile registry loaded %d profiles from %s", len(profiles), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("profile listener")
			cb(snap)
		}(fn)
	}
}

func validateProfile(p Profile) error {
	// 未设置的字段不进校验文档，nil 和 0 语义不同
	doc := map[string]any{}
	putFloat(doc, "base_risk_pct", p.BaseRiskPct)
	putFloat(doc, "strict_reduction", p.StrictReduction)
	putFloat(doc, "max_notional", p.MaxNotional)
	putFloat(doc, "max_daily_drawdown_pct", p.MaxDailyDrawdownPct)
	putInt(doc, "max_consecutive_sls", p.MaxConsecutiveSLs)
	putFloat(doc, "min_available_margin", p.MinAvailableMargin)
	putInt(doc, "cooldown_base_seconds", p.CooldownBaseSeconds)

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	return compiledSchema.Validate(generic)
}

func putFloat(doc map[string]any, key string, v *float64) {
	if v != nil {
		doc[key] = *v
	}
}

func putInt(doc map[string]any, key string, v *int) {
	if v != nil {
		doc[key] = *v
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Profile, len(src.Profiles)),
	}
	for id, p := range src.Profiles {
		dst.Profiles[id] = p
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readProfileFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read profile config failed: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse profile config failed: %w", err)
	}
	return cfg, nil
}
