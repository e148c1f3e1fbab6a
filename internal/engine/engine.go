package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"petrel/internal/config"
	"petrel/internal/execution"
	"petrel/internal/logger"
	"petrel/internal/market"
	"petrel/internal/profile"
	"petrel/internal/store"
	"petrel/internal/strategy/guard"
	"petrel/internal/strategy/planner"
	"petrel/internal/strategy/position"
	"petrel/internal/strategy/regime"
	"petrel/internal/strategy/signal"
	"petrel/internal/strategy/sizing"
	"petrel/internal/types"
)

// StateStore 引擎对持久层的最小依赖面。
type StateStore interface {
	LoadState(ctx context.Context, symbol string) (types.PersistedState, error)
	SaveState(ctx context.Context, st types.PersistedState) error
	AppendDecision(ctx context.Context, rec store.DecisionRecord) error
}

// Engine 每周期跑一遍完整管线：取数 -> 并行分类 -> 信号 -> 计划 ->
// 测算 -> 落单 -> 状态写回。跨周期状态只在周期末尾写一次。
type Engine struct {
	cfg      config.Config
	source   market.Source
	account  execution.AccountSource
	sink     execution.OrderSink
	store    StateStore
	profiles *profile.Registry // 可为 nil，nil 表示不启用风险预设

	mu    sync.Mutex
	nowFn func() time.Time
}

// New 创建引擎。profiles 传 nil 时直接使用静态配置。
func New(cfg config.Config, src market.Source, acct execution.AccountSource, sink execution.OrderSink, st StateStore, profiles *profile.Registry) *Engine {
	return &Engine{
		cfg:      cfg,
		source:   src,
		account:  acct,
		sink:     sink,
		store:    st,
		profiles: profiles,
		nowFn:    time.Now,
	}
}

// activeConfig 返回本周期生效的配置：静态配置叠加当前激活的风险预设。
// 预设热更新只在周期边界生效，周期中途不换挡。
func (e *Engine) activeConfig() config.Config {
	cfg := e.cfg
	if e.profiles == nil {
		return cfg
	}
	name := strings.TrimSpace(cfg.Profiles.Active)
	if name == "" {
		return cfg
	}
	p, ok := e.profiles.Resolve(name)
	if !ok {
		logger.Warnf("风险预设 %q 不存在，沿用静态配置", name)
		return cfg
	}
	return profile.Apply(p, cfg)
}

// RunCycle 执行一个完整决策周期。同一引擎同一时刻只允许一个周期在途，
// 上一周期未结束时新的触发直接丢弃而不是排队。
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.mu.TryLock() {
		logger.Warnf("上一周期尚未结束，本次触发跳过")
		return nil
	}
	defer e.mu.Unlock()

	now := e.nowFn()
	cfg := e.activeConfig()
	symbol := cfg.Instrument.Symbol
	cycleID := uuid.NewString()

	persisted, err := e.store.LoadState(ctx, symbol)
	if err != nil {
		return fmt.Errorf("加载持久状态失败: %w", err)
	}

	snap, err := e.source.Fetch(ctx, symbol)
	if err != nil {
		return fmt.Errorf("拉取市场快照失败: %w", err)
	}
	acct, err := e.account.Metrics(ctx, symbol)
	if err != nil {
		return fmt.Errorf("拉取账户口径失败: %w", err)
	}

	tc, err := BuildContext(snap, acct, persisted.PrevBase, cycleID, now)
	if err != nil {
		return err
	}

	// 第一拍：三个互不依赖的纯函数并行跑
	var (
		regimeDec types.RegimeDecision
		guardRes  types.AccountGuardResult
		posState  types.PositionState
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		regimeDec = regime.Classify(regime.Inputs{
			Base:   tc.BaseRegime,
			ADX:    tc.ADX,
			Vol:    tc.VolState,
			Timing: tc.Timing,
			Book:   tc.OrderBook,
		}, regimeConfig(cfg))
		return nil
	})
	g.Go(func() error {
		guardRes = guard.Evaluate(tc.Account, guardConfig(cfg))
		return nil
	})
	g.Go(func() error {
		posState = position.Derive(persisted, tc.Account.PositionSize, now)
		return nil
	})
	_ = g.Wait()

	heldSide, heldSize := heldPosition(tc.Account.PositionSize)

	sig := signal.Build(signal.Inputs{
		Frame1h:  snap.Frame(market.Interval1h),
		Frame15m: snap.Frame(market.Interval15m),
		Frame5m:  snap.Frame(market.Interval5m),
		Regime:   regimeDec,
		State:    posState,
		Position: signal.HeldPosition{Side: heldSide, Size: heldSize, OldStop: persisted.StopPrice},
	})

	tier := planner.ResolveTier(guardRes, regimeDec)
	actions, planErr := planner.Plan(planner.Inputs{
		Regime:         regimeDec,
		Guard:          guardRes,
		State:          posState,
		Signal:         sig,
		HeldSide:       heldSide,
		HeldSize:       heldSize,
		OldStop:        persisted.StopPrice,
		CooldownActive: position.SuppressesNewRisk(posState, persisted, now),
	})

	rec := store.DecisionRecord{
		CycleID:   cycleID,
		Symbol:    symbol,
		CreatedAt: now,
		Tier:      tier,
		State:     posState,
		Regime:    regimeDec,
		Guard:     guardRes,
		Signal:    sig,
		Actions:   actions,
	}

	if planErr != nil {
		// 结构性不变量被破坏：本周期致命，不落任何单，但要留痕
		logger.Errorf("[%s] %s 计划失败: %v", cycleID, symbol, planErr)
		rec.Actions = nil
		if err := e.store.AppendDecision(ctx, rec); err != nil {
			logger.Warnf("决策日志写入失败: %v", err)
		}
		return planErr
	}

	out := e.executeActions(ctx, cfg, tc, sig, regimeDec, actions)
	rec.Sizing = out.sizing

	next := e.nextState(cfg, tc, regimeDec, tier, persisted, out, now)
	if err := e.store.SaveState(ctx, next); err != nil {
		return fmt.Errorf("状态写回失败: %w", err)
	}
	if err := e.store.AppendDecision(ctx, rec); err != nil {
		logger.Warnf("决策日志写入失败: %v", err)
	}

	logger.Infof("[%s] %s 周期完成 tier=%s state=%s actions=%d score=%.1f",
		cycleID, symbol, tier, posState, len(actions), sig.Score)
	return nil
}

// cycleOutcome 本周期执行结果汇总，全部喂给周期末尾的单次状态写回。
type cycleOutcome struct {
	sizing      *types.SizingResult
	traded      bool
	stopLossHit bool    // 平仓腿实现亏损，视作止损出场
	postSize    float64 // 执行后的带符号仓位
	newStop     float64 // 本周期新下发的止损价，0 表示没动
	flattened   bool
}

// executeActions 把计划动作落成订单。FLIP 在这里拆成 EXIT + ENTER
// 两条腿，任何一腿失败都不回滚另一腿，只记录日志。
func (e *Engine) executeActions(ctx context.Context, cfg config.Config, tc types.TradeContext, sig types.SignalSnapshot, regimeDec types.RegimeDecision, actions []types.PlannedAction) cycleOutcome {
	out := cycleOutcome{postSize: tc.Account.PositionSize}

	for _, act := range actions {
		if act.CancelAll {
			if err := e.sink.CancelAll(ctx, tc.Symbol); err != nil {
				logger.Warnf("[%s] 撤单失败: %v", tc.CycleID, err)
			}
		}
		switch act.Kind {
		case types.ActionExit:
			e.closeLeg(ctx, tc, math.Abs(out.postSize), &out)
		case types.ActionReduce:
			qty := roundDown(math.Abs(out.postSize)/2, tc.Rules.SizeDecimals)
			if qty <= 0 {
				logger.Debugf("[%s] 减仓数量取整为零，跳过", tc.CycleID)
				continue
			}
			e.closeLeg(ctx, tc, qty, &out)
		case types.ActionEnter, types.ActionAdd:
			e.openLeg(ctx, cfg, tc, sig, regimeDec, act.Kind, sig.Direction, &out)
		case types.ActionFlip:
			e.closeLeg(ctx, tc, math.Abs(out.postSize), &out)
			if out.postSize != 0 {
				logger.Warnf("[%s] 反手平仓腿未完成，放弃开仓腿", tc.CycleID)
				continue
			}
			e.openLeg(ctx, cfg, tc, sig, regimeDec, types.ActionFlip, act.Side, &out)
		case types.ActionMoveSL:
			if sig.StopPrice <= 0 {
				continue
			}
			if err := e.sink.MoveStop(ctx, tc.Symbol, sig.StopPrice); err != nil {
				logger.Warnf("[%s] 移动止损失败: %v", tc.CycleID, err)
				continue
			}
			out.newStop = sig.StopPrice
		}
	}
	return out
}

// closeLeg 平掉 qty 数量的现有仓位。
func (e *Engine) closeLeg(ctx context.Context, tc types.TradeContext, qty float64, out *cycleOutcome) {
	if qty <= 0 || out.postSize == 0 {
		return
	}
	side := types.SideShort
	if out.postSize < 0 {
		side = types.SideLong
	}
	price := tc.MarkPrice
	if price <= 0 {
		price = tc.MidPrice
	}
	fill, err := e.sink.Submit(ctx, execution.Order{
		Symbol:     tc.Symbol,
		Kind:       types.ActionExit,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		ReduceOnly: true,
		TypeHint:   "MARKET",
	})
	if err != nil {
		logger.Warnf("[%s] 平仓失败: %v", tc.CycleID, err)
		return
	}
	out.traded = true
	if out.postSize > 0 {
		out.postSize -= fill.Quantity
	} else {
		out.postSize += fill.Quantity
	}
	if math.Abs(out.postSize) < 1e-12 {
		out.postSize = 0
		out.flattened = true
	}
	if fill.Closed && fill.PnL < 0 {
		out.stopLossHit = true
	}
}

// openLeg 测算并提交一条新风险腿。测算被拒时动作静默降级为不交易。
func (e *Engine) openLeg(ctx context.Context, cfg config.Config, tc types.TradeContext, sig types.SignalSnapshot, regimeDec types.RegimeDecision, kind types.ActionKind, side types.Side, out *cycleOutcome) {
	entryRef := sig.EntryPriceHint
	if entryRef <= 0 {
		entryRef = tc.MarkPrice
	}
	res := sizing.Compute(sizing.Inputs{
		Side:      side,
		Equity:    tc.Account.Equity,
		RiskScale: regimeDec.RiskScale,
		Strict:    regimeDec.StrictEntry,
		EntryRef:  entryRef,
		StopPrice: sig.StopPrice,
		Score:     sig.Score,
		Rules:     tc.Rules,
	}, sizingConfig(cfg))
	out.sizing = &res
	if res.Rejected {
		logger.Infof("[%s] %s 测算拒绝: %s", tc.CycleID, kind, res.Reason)
		return
	}

	price := entryRef
	if res.OrderTypeHint == "MARKET" {
		price = tc.MarkPrice
		if price <= 0 {
			price = entryRef
		}
	}
	fill, err := e.sink.Submit(ctx, execution.Order{
		Symbol:     tc.Symbol,
		Kind:       kind,
		Side:       side,
		Quantity:   res.Quantity,
		Price:      price,
		StopPrice:  sig.StopPrice,
		TakeProfit: res.TakeProfit,
		TypeHint:   res.OrderTypeHint,
	})
	if err != nil {
		logger.Warnf("[%s] %s 下单失败: %v", tc.CycleID, kind, err)
		return
	}
	out.traded = true
	out.flattened = false
	if side == types.SideLong {
		out.postSize += fill.Quantity
	} else {
		out.postSize -= fill.Quantity
	}
	out.newStop = sig.StopPrice
	logger.Infof("[%s] %s %s qty=%.6f stop=%.4f %s",
		tc.CycleID, kind, side, fill.Quantity, sig.StopPrice, sizing.Describe(res))
}

// nextState 周期末尾的唯一一次状态写回。
func (e *Engine) nextState(cfg config.Config, tc types.TradeContext, regimeDec types.RegimeDecision, tier types.Tier, persisted types.PersistedState, out cycleOutcome, now time.Time) types.PersistedState {
	next := persisted
	next.Symbol = tc.Symbol
	next.PrevBase = tc.BaseRegime
	next.PrevSize = out.postSize
	next.UpdatedAt = now

	if out.newStop > 0 {
		next.StopPrice = out.newStop
	}
	if out.traded {
		next.LastTradeAt = now
	}

	// STOP_ALL 置位 reduce-only，直到仓位归零才解除
	if tier == types.TierStopAll && out.postSize != 0 {
		next.ReduceOnly = true
	}
	if out.postSize == 0 {
		next.ReduceOnly = false
		next.StopPrice = 0
	}

	// 止损出场进入冷却，时长随体制缩放放大
	if out.stopLossHit {
		base := time.Duration(cfg.Cooldown.BaseSeconds) * time.Second
		scaled := time.Duration(float64(base) * (1 + regimeDec.CooldownScale))
		next.CooldownUntil = now.Add(scaled)
	}
	return next
}

func heldPosition(size float64) (types.Side, float64) {
	switch {
	case size > 0:
		return types.SideLong, size
	case size < 0:
		return types.SideShort, -size
	default:
		return types.SideNone, 0
	}
}

func roundDown(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow10(decimals)
	return math.Floor(v*p) / p
}

func regimeConfig(cfg config.Config) regime.Config {
	return regime.Config{
		MaxSpreadBps:   cfg.Regime.MaxSpreadBps,
		MinDepth:       cfg.Regime.MinDepthValue,
		ImbalanceLimit: cfg.Regime.ImbalanceLimit,
		ADXTrendFloor:  cfg.Regime.ADXTrendFloor,
		ADXStrongLevel: cfg.Regime.ADXStrongLevel,
	}
}

func guardConfig(cfg config.Config) guard.Config {
	return guard.Config{
		MaxDailyDrawdownPct: cfg.Guard.MaxDailyDrawdownPct,
		MaxConsecutiveSLs:   cfg.Guard.MaxConsecutiveSLs,
		MinAvailableMargin:  cfg.Guard.MinAvailableMargin,
		MaxLeverage:         cfg.Guard.MaxLeverage,
	}
}

func sizingConfig(cfg config.Config) sizing.Config {
	return sizing.Config{
		BaseRiskPct:     cfg.Sizing.BaseRiskPct,
		MaxNotional:     cfg.Sizing.MaxNotional,
		StrictReduction: cfg.Sizing.StrictReduction,
		RiskReward:      cfg.Sizing.RiskReward,
	}
}
