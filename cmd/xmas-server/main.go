// Command xmas-server serves Christmas ladder backtests over gRPC.
//
// Usage:
//
//	XMAS_CONFIG=config/xmasladder.yaml xmas-server
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"xmasladder/internal/api"
	"xmasladder/internal/app"
	"xmasladder/internal/config"
	"xmasladder/internal/gather"
	"xmasladder/internal/util"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("XMAS_CONFIG"), "YAML config file (defaults when empty)")
	envFile := flag.String("env-file", ".env", "dotenv file with Alpaca credentials")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("failed to load %s: %v", *envFile, err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise: %v", err)
	}
	defer a.Close()

	iv, err := gather.ParseInterval(cfg.Backtest.Interval)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	srv := api.NewServer(cfg.Server.Addr(), a.Backtester, api.Defaults{
		Params:      app.LadderParams(cfg),
		InitialCash: cfg.Backtest.InitialCash,
		Interval:    iv,
		Execution:   app.ExecutionConfig(cfg),
		Location:    a.Location,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("xmas-server starting", "addr", cfg.Server.Addr(), "feed", a.Feed.Name())
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("xmas-server stopped")
}
