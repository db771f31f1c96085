package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"quantlab/internal/app"
	"quantlab/internal/config"
	"quantlab/internal/log"
	"quantlab/internal/store"
)

func main() {
	var (
		configPath  string
		combination string
		csvPath     string
		outPath     string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&combination, "combination", "", "只回测指定名称的组合，默认回测全部")
	flag.StringVar(&csvPath, "csv", "", "从本地 CSV 载入行情，默认从交易所拉取")
	flag.StringVar(&outPath, "out", "", "结果 JSON 输出路径，默认只写数据库")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	backtestApp := app.New(cfg, logger, sqliteStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := backtestApp.Run(ctx, app.Options{
		Combination: combination,
		CSVPath:     csvPath,
		OutPath:     outPath,
	}); err != nil {
		logger.Error("回测运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("回测已完成")
}
