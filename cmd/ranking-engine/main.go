package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pcwadarong/web21-funda-sub001/app/modules/ranking"
	"github.com/pcwadarong/web21-funda-sub001/config"
	"github.com/pcwadarong/web21-funda-sub001/db/bundb"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
	"github.com/pcwadarong/web21-funda-sub001/internal/opsserver"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Fatalf("ranking-engine: %v", err)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	obs, err := observability.Init(ctx, observability.Config{
		ServiceName: cfg.Observability.ServiceName,
		Log:         config.ToLogConfig(cfg),
		Tracing:     config.ToTracingConfig(cfg),
	})
	if err != nil {
		return err
	}
	logger := obs.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to flush traces", slog.Any("error", err))
		}
	}()

	db, err := bundb.Open(ctx, cfg.Postgres.DSN, logger, bundb.Options{MaxOpenConns: 20, ConnMaxLifetime: time.Hour})
	if err != nil {
		return err
	}
	defer db.Close()

	module, err := ranking.NewRankingModule(ctx, cfg, obs, db)
	if err != nil {
		return err
	}
	if err := module.StartQueue(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go module.Run(ctx, &wg)

	if addr := cfg.Observability.MetricsAddress; addr != "" {
		router := opsserver.NewRouter(obs.Registry, map[string]opsserver.Checker{
			"postgres": opsserver.CheckerFunc(db.PingContext),
			"queue":    module.Queue,
		})
		srv := opsserver.New(addr, router, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("Ops server failed", slog.Any("error", err))
			}
		}()
	}

	logger.InfoContext(ctx, "Ranking engine running")
	<-ctx.Done()
	logger.Info("Shutting down ranking engine")

	if err := module.Close(shutdownTimeout); err != nil {
		logger.Error("Ranking module did not stop cleanly", slog.Any("error", err))
	}
	wg.Wait()
	logger.Info("Ranking engine shut down gracefully")
	return nil
}
