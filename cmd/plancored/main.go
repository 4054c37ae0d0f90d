// Command plancored runs the plancore HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"plancore/internal/blob"
	"plancore/internal/config"
	"plancore/internal/core"
	"plancore/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stderrFatal("load config: " + err.Error())
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		stderrFatal("build logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("plancored exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	gate := core.GatePolicy(cfg.Gate.Policy)
	engine := core.NewRulesEngine(gate)

	storePath := cfg.Storage.Path
	if cfg.Storage.Driver == "postgres" {
		storePath = cfg.Storage.DSN
	}
	store, err := core.OpenPersistentStore(cfg.Storage.Driver, storePath, engine)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.Open(ctx, cfg.Blob.Driver, cfg.Blob.Root)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithBlobStore(blobs),
		core.WithGatePolicy(gate),
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
	)

	api := httpapi.NewServer(svc, logger, registry)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("plancored listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("blob", string(blobs.Driver())),
			zap.String("gate", string(svc.GatePolicy())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
	return nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func stderrFatal(msg string) {
	_, _ = os.Stderr.WriteString(msg + "\n")
	os.Exit(1)
}
