// Package main runs the pairs backtest service with HTTP and gRPC front ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/reflection"

	"pairs-backtest/services/api"
	"pairs-backtest/services/arrowpipeline"
	"pairs-backtest/services/clickhouse"
	"pairs-backtest/services/config"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/monitoring"
	"pairs-backtest/services/rpc"
	"pairs-backtest/services/runner"
	"pairs-backtest/services/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("PAIRS_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting pairs backtest service",
		zap.String("environment", cfg.Environment),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
	)

	var metrics *monitoring.Metrics
	if cfg.Monitoring.Enabled {
		metrics = monitoring.New()
	}

	opts := runner.Options{
		Defaults: cfg.Backtest,
		Metrics:  metrics,
		Planner:  engine.NewPlanner(cfg.Engine.MaxChunkSize, cfg.Engine.MaxWorkers),
		Retain:   cfg.Engine.RetainRuns,
		Logger:   logger,
	}
	if cfg.Storage.SQLitePath != "" {
		st, err := store.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Sinks = append(opts.Sinks, runner.SQLiteSink(st))
		opts.Archive = st
	}
	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
		if err != nil {
			return err
		}
		defer ch.Close()
		if err := ch.InitSchema(ctx); err != nil {
			return err
		}
		opts.Source = ch
		opts.Sinks = append(opts.Sinks, runner.ClickHouseSink(cfg.ClickHouse, logger))
	}
	r := runner.New(opts)

	gin.SetMode(gin.ReleaseMode)
	pipeline := arrowpipeline.NewPipeline(arrowpipeline.Config{}, nil, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.NewServer(r, pipeline, metrics, logger, cfg.Server.MaxBodyBytes).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcServer := rpc.NewServer(rpc.NewBacktestService(r, logger))
	reflection.Register(grpcServer)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		errc <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	logger.Info("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
	return nil
}
