package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"petrel/internal/app"
	"petrel/internal/config"
	"petrel/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("PETREL_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	if cfg.App.LogPath != "" {
		closer, err := logger.SetFile(cfg.App.LogPath)
		if err != nil {
			log.Fatalf("初始化日志文件失败: %v", err)
		}
		defer closer.Close()
	}
	logger.Infof("✓ 配置加载成功（环境=%s，标的=%s）", cfg.App.Env, cfg.Instrument.Symbol)

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("运行失败: %v", err)
	}
}
