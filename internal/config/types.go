package config

import "strings"

// Config 是 Petrel 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Market     MarketConfig     `toml:"market"`
	Instrument InstrumentConfig `toml:"instrument"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Regime     RegimeConfig     `toml:"regime"`
	Guard      GuardConfig      `toml:"guard"`
	Sizing     SizingConfig     `toml:"sizing"`
	Cooldown   CooldownConfig   `toml:"cooldown"`
	Store      StoreConfig      `toml:"store"`
	Profiles   ProfilesConfig   `toml:"profiles"`
	Execution  ExecutionConfig  `toml:"execution"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// InstrumentConfig 单标的运行配置。
type InstrumentConfig struct {
	Symbol      string  `toml:"symbol"`
	MaxLeverage float64 `toml:"max_leverage"`
}

// ScheduleConfig 周期触发配置。Interval 跟随信号主周期（如 "15m"），
// OffsetSeconds 是收盘后的延迟，留给交易所落K线。
type ScheduleConfig struct {
	Interval      string `toml:"interval"`
	OffsetSeconds int    `toml:"offset_seconds"`
}

// RegimeConfig 体制分类阈值。
type RegimeConfig struct {
	MaxSpreadBps   float64 `toml:"max_spread_bps"`
	MinDepthValue  float64 `toml:"min_depth_value"`
	ImbalanceLimit float64 `toml:"imbalance_limit"`
	ADXTrendFloor  float64 `toml:"adx_trend_floor"`
	ADXStrongLevel float64 `toml:"adx_strong_level"`
}

// GuardConfig 账户风控阈值，0 表示对应检查关闭。
type GuardConfig struct {
	MaxDailyDrawdownPct float64 `toml:"max_daily_drawdown_pct"`
	MaxConsecutiveSLs   int     `toml:"max_consecutive_sls"`
	MinAvailableMargin  float64 `toml:"min_available_margin"`
	MaxLeverage         float64 `toml:"max_leverage"`
}

// SizingConfig 仓位测算参数。
type SizingConfig struct {
	BaseRiskPct     float64 `toml:"base_risk_pct"`
	MaxNotional     float64 `toml:"max_notional"`
	StrictReduction float64 `toml:"strict_reduction"`
	RiskReward      float64 `toml:"risk_reward"`
}

// CooldownConfig 止损后的冷却基准时长，实际时长乘以体制给的缩放。
type CooldownConfig struct {
	BaseSeconds int `toml:"base_seconds"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// ProfilesConfig 风险预设文件（热加载）。
type ProfilesConfig struct {
	Path   string `toml:"path"`
	Active string `toml:"active"`
}

// ExecutionConfig 执行通道。mode 目前只有 "paper"。
type ExecutionConfig struct {
	Mode          string  `toml:"mode"`
	InitialEquity float64 `toml:"initial_equity"` // paper 账户起始权益
}

type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name           string  `toml:"name"`
	Enabled        bool    `toml:"enabled"`
	RESTBaseURL    string  `toml:"rest_base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxLeverage    float64 `toml:"max_leverage"`
}

func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        "binance",
			Enabled:     true,
			RESTBaseURL: "https://fapi.binance.com",
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
