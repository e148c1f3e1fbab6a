package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Instrument.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Guard.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	return nil
}

func (i *InstrumentConfig) validate() error {
	if strings.TrimSpace(i.Symbol) == "" {
		return fmt.Errorf("instrument.symbol is required")
	}
	if i.MaxLeverage <= 0 {
		return fmt.Errorf("instrument.max_leverage must be > 0")
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Interval)) {
	case "1m", "5m", "15m", "30m", "1h", "4h":
	default:
		return fmt.Errorf("schedule.interval unsupported: %s", s.Interval)
	}
	if s.OffsetSeconds < 0 {
		return fmt.Errorf("schedule.offset_seconds must be >= 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	src := m.ResolveActiveSource()
	if !src.Enabled {
		return fmt.Errorf("market: no enabled source matches active_source=%q", m.ActiveSource)
	}
	if strings.TrimSpace(src.RESTBaseURL) == "" {
		return fmt.Errorf("market.sources.%s missing rest_base_url", src.Name)
	}
	return nil
}

func (g *GuardConfig) validate() error {
	if g.MaxDailyDrawdownPct < 0 || g.MaxDailyDrawdownPct >= 1 {
		return fmt.Errorf("guard.max_daily_drawdown_pct must be in [0, 1)")
	}
	if g.MaxConsecutiveSLs < 0 {
		return fmt.Errorf("guard.max_consecutive_sls must be >= 0")
	}
	if g.MinAvailableMargin < 0 {
		return fmt.Errorf("guard.min_available_margin must be >= 0")
	}
	if g.MaxLeverage < 0 {
		return fmt.Errorf("guard.max_leverage must be >= 0")
	}
	return nil
}

func (s *SizingConfig) validate() error {
	if s.BaseRiskPct <= 0 || s.BaseRiskPct > 0.1 {
		return fmt.Errorf("sizing.base_risk_pct must be in (0, 0.1]")
	}
	if s.StrictReduction <= 0 || s.StrictReduction > 1 {
		return fmt.Errorf("sizing.strict_reduction must be in (0, 1]")
	}
	if s.MaxNotional < 0 {
		return fmt.Errorf("sizing.max_notional must be >= 0")
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Mode)) {
	case "paper":
	default:
		return fmt.Errorf("execution.mode unsupported: %s", e.Mode)
	}
	if e.InitialEquity <= 0 {
		return fmt.Errorf("execution.initial_equity must be > 0")
	}
	return nil
}
