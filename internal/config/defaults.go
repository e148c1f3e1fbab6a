package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9991"
	defaultAppLogPath  = "/data/logs/petrel-live.log"

	defaultMarketName    = "binance"
	defaultMarketREST    = "https://fapi.binance.com"
	defaultMarketTimeout = 10

	defaultInstrumentLeverage = 20

	defaultScheduleInterval = "15m"
	defaultScheduleOffset   = 5

	defaultRegimeMaxSpreadBps  = 2.0
	defaultRegimeMinDepth      = 200_000
	defaultRegimeImbalance     = 0.8
	defaultRegimeADXFloor      = 20
	defaultRegimeADXStrong     = 25
	defaultGuardDailyDrawdown  = 0.05
	defaultGuardConsecutiveSLs = 3
	defaultSizingBaseRisk      = 0.01
	defaultSizingStrictReduce  = 0.75
	defaultSizingRiskReward    = 1.8
	defaultCooldownBaseSeconds = 3600
	defaultStorePath           = "/data/live/petrel.db"
	defaultProfilesPath        = "configs/profiles.yaml"

	defaultExecutionMode          = "paper"
	defaultExecutionInitialEquity = 10_000.0
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Instrument.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
	c.Regime.applyDefaults(keys)
	c.Guard.applyDefaults(keys)
	c.Sizing.applyDefaults(keys)
	c.Cooldown.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Profiles.applyDefaults(keys)
	c.Execution.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 && !keys.isSet("market.sources") {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			src.RESTBaseURL = defaultMarketREST
		}
		if src.TimeoutSeconds <= 0 {
			src.TimeoutSeconds = defaultMarketTimeout
		}
	}
}

func (i *InstrumentConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "instrument.max_leverage",
			need:  func() bool { return i.MaxLeverage <= 0 },
			apply: func() { i.MaxLeverage = defaultInstrumentLeverage },
		},
	)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("schedule.interval", &s.Interval, defaultScheduleInterval),
		fieldDefault{
			key:   "schedule.offset_seconds",
			need:  func() bool { return s.OffsetSeconds <= 0 },
			apply: func() { s.OffsetSeconds = defaultScheduleOffset },
		},
	)
}

func (r *RegimeConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		float64FieldDefault("regime.max_spread_bps", &r.MaxSpreadBps, defaultRegimeMaxSpreadBps),
		float64FieldDefault("regime.min_depth_value", &r.MinDepthValue, defaultRegimeMinDepth),
		float64FieldDefault("regime.imbalance_limit", &r.ImbalanceLimit, defaultRegimeImbalance),
		float64FieldDefault("regime.adx_trend_floor", &r.ADXTrendFloor, defaultRegimeADXFloor),
		float64FieldDefault("regime.adx_strong_level", &r.ADXStrongLevel, defaultRegimeADXStrong),
	)
}

func (g *GuardConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	// Guard 阈值 0 有"检查关闭"的语义，只有用户完全没写时才给默认
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "guard.max_daily_drawdown_pct",
			need:  func() bool { return g.MaxDailyDrawdownPct == 0 },
			apply: func() { g.MaxDailyDrawdownPct = defaultGuardDailyDrawdown },
		},
		fieldDefault{
			key:   "guard.max_consecutive_sls",
			need:  func() bool { return g.MaxConsecutiveSLs == 0 },
			apply: func() { g.MaxConsecutiveSLs = defaultGuardConsecutiveSLs },
		},
	)
}

func (s *SizingConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		float64FieldDefault("sizing.base_risk_pct", &s.BaseRiskPct, defaultSizingBaseRisk),
		float64FieldDefault("sizing.strict_reduction", &s.StrictReduction, defaultSizingStrictReduce),
		float64FieldDefault("sizing.risk_reward", &s.RiskReward, defaultSizingRiskReward),
	)
}

func (c *CooldownConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "cooldown.base_seconds",
			need:  func() bool { return c.BaseSeconds <= 0 },
			apply: func() { c.BaseSeconds = defaultCooldownBaseSeconds },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (p *ProfilesConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("profiles.path", &p.Path, defaultProfilesPath),
	)
}

func (e *ExecutionConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("execution.mode", &e.Mode, defaultExecutionMode),
		float64FieldDefault("execution.initial_equity", &e.InitialEquity, defaultExecutionInitialEquity),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func float64FieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && *target <= 0
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
