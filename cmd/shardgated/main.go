// Command shardgated is a demo server putting per-session admission control
// and bounded caches in front of a stream + messages endpoint pair.
//
// Configuration comes from the environment; see package config.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/shardgate/admission"
	"github.com/IvanBrykalov/shardgate/cache"
	"github.com/IvanBrykalov/shardgate/config"
	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
	"github.com/IvanBrykalov/shardgate/metrics/prom"
	"github.com/IvanBrykalov/shardgate/monitor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, logger, flush, err := setup()
	if err != nil {
		logutil.Fatal(logger, err, "Startup failed")
	}
	defer func() { _ = flush() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logutil.Fatal(logger, err, "Server exited with error")
	}
	logger.Info("Server stopped")
}

// setup loads the configuration and builds the configured logger. On error
// the returned logger is still usable: it is an info-level logger when the
// configured one could not be built.
func setup() (config.Config, logr.Logger, func() error, error) {
	cfg, cfgErr := config.Load()
	level := cfg.LogLevel
	if cfgErr != nil {
		level = "info"
	}
	logger, flush, err := logutil.New(level)
	if err != nil {
		fallback, fallbackFlush, fbErr := logutil.New("info")
		if fbErr != nil {
			fallback, fallbackFlush = logr.Discard(), func() error { return nil }
		}
		return cfg, fallback, fallbackFlush, fmt.Errorf("build logger: %w", err)
	}
	if cfgErr != nil {
		return cfg, logger, flush, fmt.Errorf("load config: %w", cfgErr)
	}
	return cfg, logger, flush, nil
}

func run(ctx context.Context, cfg config.Config, logger logr.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	caches := cache.NewRegistry()
	promReg.MustRegister(prom.NewRegistryCollector(caches, "shardgate"))
	res := newResources(cfg.Caches, caches, promReg)

	ctrl := admission.NewController(admission.Options{
		Limit:      cfg.Session.Limit,
		RetryAfter: cfg.Session.RetryAfter,
		Metrics:    prom.NewAdmissionAdapter(promReg, "shardgate"),
		Logger:     logger,
	})
	reaper := admission.NewReaper(ctrl, admission.ReaperOptions{
		Interval: cfg.Session.ReapInterval,
		MaxAge:   cfg.Session.MaxIdleAge,
		Logger:   logger,
	})
	mon := monitor.New(caches, monitor.Options{
		Interval:      cfg.Monitor.Interval,
		FullThreshold: cfg.Monitor.FullThreshold,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newServer(cfg, ctrl, caches, res, promReg, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "addr", cfg.ListenAddr, "sessionLimit", ctrl.Limit(), "retryAfter", ctrl.RetryAfter())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error { return mon.Run(gctx) })
	return g.Wait()
}
