package profile

import "petrel/internal/config"

// Apply 把预设叠加到主配置的风险相关段上，返回叠加后的副本。
// 只覆盖预设里显式设置的字段。
func Apply(p Profile, cfg config.Config) config.Config {
	if p.BaseRiskPct != nil {
		cfg.Sizing.BaseRiskPct = *p.BaseRiskPct
	}
	if p.StrictReduction != nil {
		cfg.Sizing.StrictReduction = *p.StrictReduction
	}
	if p.MaxNotional != nil {
		cfg.Sizing.MaxNotional = *p.MaxNotional
	}
	if p.MaxDailyDrawdownPct != nil {
		cfg.Guard.MaxDailyDrawdownPct = *p.MaxDailyDrawdownPct
	}
	if p.MaxConsecutiveSLs != nil {
		cfg.Guard.MaxConsecutiveSLs = *p.MaxConsecutiveSLs
	}
	if p.MinAvailableMargin != nil {
		cfg.Guard.MinAvailableMargin = *p.MinAvailableMargin
	}
	if p.CooldownBaseSeconds != nil {
		cfg.Cooldown.BaseSeconds = *p.CooldownBaseSeconds
	}
	return cfg
}
