package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/statusmonitor/internal/config"
	"github.com/hamed0406/statusmonitor/internal/httpapi"
	"github.com/hamed0406/statusmonitor/internal/logging"
	"github.com/hamed0406/statusmonitor/internal/probe"
	"github.com/hamed0406/statusmonitor/internal/query"
	"github.com/hamed0406/statusmonitor/internal/registry"
	"github.com/hamed0406/statusmonitor/internal/scheduler"
	"github.com/hamed0406/statusmonitor/internal/telemetry"
	"github.com/hamed0406/statusmonitor/internal/tracker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.FromEnv()
	pflag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "path to the monitoring config file")
	pflag.StringVar(&cfg.Addr, "addr", cfg.Addr, "API listen address")
	pflag.Parse()

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	mon, err := config.LoadSites(cfg.ConfigFile)
	if err != nil {
		return err
	}
	if mon.Version != "" && version == "dev" {
		version = mon.Version
	}
	logger.Info("starting statusmonitor",
		zap.String("version", version),
		zap.String("config", cfg.ConfigFile),
		zap.Int("sites", len(mon.Targets)),
		zap.Duration("check_interval", mon.CheckInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otl, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enable:         cfg.OTELEnable,
		Endpoint:       cfg.OTELEndpoint,
		ServiceName:    "statusmonitor",
		ServiceVersion: version,
		SampleRatio:    cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Warn("otel_init_failed", zap.Error(err))
		otl = &telemetry.OTel{}
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Append(err, otl.Shutdown(shCtx))
	}()

	store, err := openStore(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	reg := registry.New(store, logger)
	if _, err := reg.Seed(rootCtx, mon.Targets); err != nil {
		return err
	}

	probe.UserAgent = "statusmonitor/" + version + " (uptime monitoring)"
	prober := probe.NewHTTPChecker(mon.RequestTimeout, mon.MaxConcurrentChecks)

	tr := tracker.New(reg, logger, tracker.Policy(cfg.LastChangePolicy))

	alerts, events, closeSinks := buildAlerters(cfg, logger)
	defer func() { err = multierr.Append(err, closeSinks()) }()
	tr.OnTransition = scheduler.EnqueueAll(alerts, events)

	sched := scheduler.NewScheduler(logger, reg, prober, tr, store, scheduler.Config{
		Interval:    mon.CheckInterval,
		Concurrency: mon.MaxConcurrentChecks,
		Cooldown:    cfg.CycleCooldown,
		Retention:   cfg.HistoryRetention,
	})

	api := httpapi.NewServer(logger, query.New(reg, store, sched, logger), httpapi.Options{
		AppName:        mon.Name,
		Version:        version,
		CheckInterval:  mon.CheckInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return sched.Run(ctx) })
	for _, a := range []*scheduler.Alerter{alerts, events} {
		if a != nil {
			g.Go(func() error { return a.Run(ctx) })
		}
	}
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown_signal")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	err = g.Wait()
	logger.Info("bye")
	return err
}
