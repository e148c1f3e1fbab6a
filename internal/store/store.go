// Package store 持久化层：跨周期状态 + 决策日志，Gorm + SQLite。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"petrel/internal/logger"
	"petrel/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	glogger "gorm.io/gorm/logger"
)

// Store implements cross-cycle state and decision logging using Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

// stateModel 每个标的一行，周期结束时整行覆盖。
type stateModel struct {
	Symbol        string    `gorm:"column:symbol;primaryKey;size:32"`
	PrevBase      string    `gorm:"column:prev_base;size:16"`
	PrevSize      float64   `gorm:"column:prev_size"`
	StopPrice     float64   `gorm:"column:stop_price"`
	LastTradeAt   time.Time `gorm:"column:last_trade_at"`
	CooldownUntil time.Time `gorm:"column:cooldown_until"`
	ReduceOnly    bool      `gorm:"column:reduce_only"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (stateModel) TableName() string { return "instrument_states" }

// decisionModel 决策日志，结构化字段 + JSON 明细。
type decisionModel struct {
	ID        uint           `gorm:"column:id;primaryKey;autoIncrement"`
	CycleID   string         `gorm:"column:cycle_id;size:64;index"`
	Symbol    string         `gorm:"column:symbol;size:32;index:idx_decisions_symbol_time"`
	CreatedAt time.Time      `gorm:"column:created_at;index:idx_decisions_symbol_time"`
	Tier      string         `gorm:"column:tier;size:16"`
	State     string         `gorm:"column:position_state;size:16"`
	Score     float64        `gorm:"column:score"`
	Regime    datatypes.JSON `gorm:"column:regime_json"`
	Guard     datatypes.JSON `gorm:"column:guard_json"`
	Signal    datatypes.JSON `gorm:"column:signal_json"`
	Actions   datatypes.JSON `gorm:"column:actions_json"`
	Sizing    datatypes.JSON `gorm:"column:sizing_json"`
}

func (decisionModel) TableName() string { return "decision_logs" }

// DecisionRecord 一个周期的完整裁决，落库后用于复盘与状态页查询。
type DecisionRecord struct {
	CycleID   string
	Symbol    string
	CreatedAt time.Time
	Tier      types.Tier
	State     types.PositionState
	Regime    types.RegimeDecision
	Guard     types.AccountGuardResult
	Signal    types.SignalSnapshot
	Actions   []types.PlannedAction
	Sizing    *types.SizingResult
}

// Open 打开（必要时创建）数据库并迁移表结构。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   glogger.Default.LogMode(glogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&stateModel{}, &decisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadState 读取标的的跨周期状态；没有记录时返回零值状态而不是错误。
func (s *Store) LoadState(ctx context.Context, symbol string) (types.PersistedState, error) {
	if s == nil || s.db == nil {
		return types.PersistedState{}, fmt.Errorf("store 未初始化")
	}
	var m stateModel
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.PersistedState{Symbol: symbol}, nil
	}
	if err != nil {
		return types.PersistedState{}, err
	}
	return types.PersistedState{
		Symbol:        m.Symbol,
		PrevBase:      types.MarketRegime(m.PrevBase),
		PrevSize:      m.PrevSize,
		StopPrice:     m.StopPrice,
		LastTradeAt:   m.LastTradeAt,
		CooldownUntil: m.CooldownUntil,
		ReduceOnly:    m.ReduceOnly,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// SaveState 整行 upsert。每周期恰好调用一次，这是全系统唯一的
// 跨周期写入点。
func (s *Store) SaveState(ctx context.Context, st types.PersistedState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store 未初始化")
	}
	if strings.TrimSpace(st.Symbol) == "" {
		return fmt.Errorf("store: symbol 必填")
	}
	m := stateModel{
		Symbol:        st.Symbol,
		PrevBase:      string(st.PrevBase),
		PrevSize:      st.PrevSize,
		StopPrice:     st.StopPrice,
		LastTradeAt:   st.LastTradeAt,
		CooldownUntil: st.CooldownUntil,
		ReduceOnly:    st.ReduceOnly,
		UpdatedAt:     time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// AppendDecision 追加一条决策日志。日志失败不应该让周期失败，
// 调用方只记 warning。
func (s *Store) AppendDecision(ctx context.Context, rec DecisionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store 未初始化")
	}
	m := decisionModel{
		CycleID:   rec.CycleID,
		Symbol:    rec.Symbol,
		CreatedAt: rec.CreatedAt,
		Tier:      string(rec.Tier),
		State:     string(rec.State),
		Score:     rec.Signal.Score,
		Regime:    mustJSON(rec.Regime),
		Guard:     mustJSON(rec.Guard),
		Signal:    mustJSON(rec.Signal),
		Actions:   mustJSON(rec.Actions),
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if rec.Sizing != nil {
		m.Sizing = mustJSON(rec.Sizing)
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// RecentDecisions 按时间倒序取最近 limit 条决策，状态页用。
func (s *Store) RecentDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	if limit <= 0 {
		limit = 20
	}
	var models []decisionModel
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]DecisionRecord, 0, len(models))
	for _, m := range models {
		rec := DecisionRecord{
			CycleID:   m.CycleID,
			Symbol:    m.Symbol,
			CreatedAt: m.CreatedAt,
			Tier:      types.Tier(m.Tier),
			State:     types.PositionState(m.State),
		}
		// 坏行不中断整页查询，逐字段告警后按零值返回。
		fields := []struct {
			name string
			raw  datatypes.JSON
			dst  any
		}{
			{"regime", m.Regime, &rec.Regime},
			{"guard", m.Guard, &rec.Guard},
			{"signal", m.Signal, &rec.Signal},
			{"actions", m.Actions, &rec.Actions},
		}
		for _, f := range fields {
			if len(f.raw) == 0 {
				continue
			}
			if err := json.Unmarshal(f.raw, f.dst); err != nil {
				logger.Warnf("决策记录 %s 字段 %s 解析失败: %v", m.CycleID, f.name, err)
			}
		}
		if len(m.Sizing) > 0 {
			var sz types.SizingResult
			if err := json.Unmarshal(m.Sizing, &sz); err != nil {
				logger.Warnf("决策记录 %s 字段 sizing 解析失败: %v", m.CycleID, err)
			} else {
				rec.Sizing = &sz
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
