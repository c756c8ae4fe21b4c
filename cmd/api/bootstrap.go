package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/config"
	"github.com/hamed0406/statusmonitor/internal/notify"
	"github.com/hamed0406/statusmonitor/internal/repo"
	"github.com/hamed0406/statusmonitor/internal/repo/memory"
	pg "github.com/hamed0406/statusmonitor/internal/repo/postgres"
	"github.com/hamed0406/statusmonitor/internal/repo/sqlite"
	"github.com/hamed0406/statusmonitor/internal/scheduler"
)

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("store driver %q needs DATABASE_URL", cfg.StoreDriver)
		}
		s, err := pg.New(ctx, pg.Config{
			URL:          cfg.DatabaseURL,
			MaxConns:     cfg.DBMaxConns,
			QueryTimeout: cfg.DBQueryTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("store_opened", zap.String("driver", cfg.StoreDriver))
		return s, nil
	case config.DriverMemory:
		logger.Warn("store_in_memory", zap.String("note", "state is lost on restart"))
		return memory.New(), nil
	case config.DriverSQLite, "":
		s, err := sqlite.Open(cfg.DatabasePath, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("store_opened", zap.String("driver", config.DriverSQLite), zap.String("path", cfg.DatabasePath))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// buildAlerters wires the configured sinks. Chat sinks get filtered alerts
// (down cooldown, optional recovery); Kafka gets every transition. Either
// alerter is nil when its sinks are not configured. The returned func
// releases sink resources.
func buildAlerters(cfg config.Config, logger *zap.Logger) (alerts, events *scheduler.Alerter, closeFn func() error) {
	closeFn = func() error { return nil }

	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		alerts = scheduler.NewAlerter(notify.Multi{slack}, scheduler.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
		}, logger)
		logger.Info("notifier_enabled", zap.String("sink", "slack"))
	}
	if k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, logger); k != nil {
		events = scheduler.NewAlerter(k, scheduler.AlerterConfig{EveryTransition: true}, logger)
		closeFn = k.Close
		logger.Info("notifier_enabled", zap.String("sink", "kafka"), zap.Strings("brokers", cfg.KafkaBrokers))
	}
	return alerts, events, closeFn
}
