// Package app 负责应用级编排：配置加载之后的依赖组装与启动。
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"petrel/internal/config"
	"petrel/internal/engine"
	"petrel/internal/execution"
	"petrel/internal/logger"
	"petrel/internal/market"
	"petrel/internal/profile"
	"petrel/internal/scheduler"
	"petrel/internal/store"
	statushttp "petrel/internal/transport/http/status"
)

// App 持有全部长生命周期对象。构建（NewApp）与运行（Run）分离，
// 构建失败时不留下任何后台 goroutine。
type App struct {
	cfg      *config.Config
	store    *store.Store
	profiles *profile.Registry
	engine   *engine.Engine
	http     *statushttp.Server
	interval time.Duration
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("打开持久层失败: %w", err)
	}

	var registry *profile.Registry
	if path := strings.TrimSpace(cfg.Profiles.Path); path != "" {
		registry, err = profile.NewRegistry(path)
		if err != nil {
			// 预设文件损坏不应拦住启动，降级为静态配置
			logger.Warnf("风险预设加载失败，使用静态配置: %v", err)
			registry = nil
		}
	}

	src := cfg.Market.ResolveActiveSource()
	source := market.NewBinanceSource(market.BinanceConfig{
		RESTBaseURL: src.RESTBaseURL,
		HTTPTimeout: time.Duration(src.TimeoutSeconds) * time.Second,
		MaxLeverage: src.MaxLeverage,
	})

	broker := execution.NewPaperBroker(
		cfg.Instrument.Symbol,
		cfg.Execution.InitialEquity,
		cfg.Instrument.MaxLeverage,
	)

	eng := engine.New(*cfg, source, broker, broker, st, registry)

	httpSrv, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Symbol:   cfg.Instrument.Symbol,
		Query:    st,
		Account:  broker,
		Profiles: registry,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("构建状态服务失败: %w", err)
	}

	interval, ok := scheduler.ParseIntervalDuration(cfg.Schedule.Interval)
	if !ok {
		_ = st.Close()
		return nil, fmt.Errorf("无法解析周期 %q", cfg.Schedule.Interval)
	}

	return &App{
		cfg:      cfg,
		store:    st,
		profiles: registry,
		engine:   eng,
		http:     httpSrv,
		interval: interval,
	}, nil
}

// Run 启动状态服务和决策循环，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	logger.InfoBlock(fmt.Sprintf(
		"标的: %s\n周期: %s +%ds\n执行: %s\n状态服务: %s",
		a.cfg.Instrument.Symbol,
		a.cfg.Schedule.Interval, a.cfg.Schedule.OffsetSeconds,
		a.cfg.Execution.Mode,
		a.http.Addr(),
	))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.http.Start(gctx)
	})
	g.Go(func() error {
		sched := scheduler.NewAlignedScheduler(
			gctx,
			a.interval,
			time.Duration(a.cfg.Schedule.OffsetSeconds)*time.Second,
		)
		sched.Start(func() {
			if err := a.engine.RunCycle(gctx); err != nil {
				logger.Errorf("决策周期失败: %v", err)
			}
		})
		return nil
	})
	return g.Wait()
}
