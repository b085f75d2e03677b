package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"github.com/you/dexarb-bot/internal/bot"
	"github.com/you/dexarb-bot/internal/config"
	"github.com/you/dexarb-bot/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := bot.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	if err := bot.New(cfg, logger).Run(ctx); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
}
