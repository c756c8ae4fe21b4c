package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/metrics"
	"github.com/hamed0406/statusmonitor/internal/probe"
)

// TargetSource yields the sites to probe, in order.
type TargetSource interface {
	Targets() []domain.Target
}

// Applier records a probe result for a site.
type Applier interface {
	Apply(ctx context.Context, name string, res probe.Result, now time.Time) error
}

// HistoryPruner drops history older than a cutoff.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	Interval    time.Duration
	Concurrency int
	// Cooldown is the pause after a sweep aborted by a panic.
	Cooldown time.Duration
	// Retention bounds the age of history records; zero keeps everything.
	Retention time.Duration
}

type Scheduler struct {
	Logger  *zap.Logger
	Targets TargetSource
	Prober  probe.Prober
	Tracker Applier
	History HistoryPruner
	Config

	now  func() time.Time
	beat atomic.Int64 // unix nanos of the latest sign of life
}

func NewScheduler(
	logger *zap.Logger,
	targets TargetSource,
	prober probe.Prober,
	tracker Applier,
	history HistoryPruner,
	cfg Config,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Scheduler{
		Logger:  logger,
		Targets: targets,
		Prober:  prober,
		Tracker: tracker,
		History: history,
		Config:  cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps all sites immediately and then once per Interval, measured
// from the start of each sweep. A sweep that overruns the interval is
// followed by the next one without delay. Cancellation is observed between
// sweeps and between site launches; probes already running are left to
// finish or time out. Run returns nil once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Interval == 0 {
		s.Logger.Info("scheduler_disabled")
		return nil
	}
	s.touch()
	s.Logger.Info("scheduler_started",
		zap.Duration("interval", s.Interval),
		zap.Int("concurrency", s.Concurrency),
		zap.Int("sites", len(s.Targets.Targets())),
	)

	for {
		if ctx.Err() != nil {
			s.Logger.Info("scheduler_stopped")
			return nil
		}

		start := time.Now()
		wait := s.Interval
		if err := s.safeCycle(ctx); err != nil {
			s.Logger.Error("scheduler_cycle_failed", zap.Error(err), zap.Duration("cooldown", s.Cooldown))
			wait = s.Cooldown
		} else {
			wait -= time.Since(start)
		}
		s.touch()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Logger.Info("scheduler_stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Alive reports an error when no sweep has started or finished recently.
func (s *Scheduler) Alive(now time.Time) error {
	n := s.beat.Load()
	if n == 0 {
		return errors.New("scheduler not started")
	}
	last := time.Unix(0, n)
	if age := now.Sub(last); age > s.staleAfter() {
		return fmt.Errorf("no sweep for %s", age.Truncate(time.Second))
	}
	return nil
}

func (s *Scheduler) staleAfter() time.Duration {
	return 3*s.Interval + s.Cooldown
}

func (s *Scheduler) touch() { s.beat.Store(time.Now().UnixNano()) }

// safeCycle turns a panic escaping a sweep into an error.
func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CyclePanics.Inc()
			s.Logger.Error("scheduler_cycle_panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	s.runOnce(ctx)
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	s.touch()

	tr := otel.Tracer("scheduler")
	ctx, span := tr.Start(ctx, "scheduler.sweep")
	defer span.End()

	targets := s.Targets.Targets()
	span.SetAttributes(attribute.Int("sites", len(targets)))

	// in-flight probes and their bookkeeping outlive a shutdown request
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	var online, failed atomic.Int32
	launched := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			s.Logger.Info("scheduler_sweep_interrupted", zap.Int("launched", launched), zap.Int("sites", len(targets)))
			break
		}
		launched++
		g.Go(func() error {
			switch s.checkSite(work, t) {
			case siteOnline:
				online.Add(1)
			case siteFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.prune(ctx)

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	s.Logger.Info("scheduler_cycle_done",
		zap.Int("sites", launched),
		zap.Int32("online", online.Load()),
		zap.Int32("failed", failed.Load()),
		zap.Duration("elapsed", elapsed),
	)
}

type siteOutcome int

const (
	siteDown siteOutcome = iota
	siteOnline
	siteFailed
)

// checkSite probes one target and records the result. A panic here is
// contained to this site.
func (s *Scheduler) checkSite(ctx context.Context, t domain.Target) (out siteOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("scheduler_site_panic",
				zap.String("site", t.Name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = siteFailed
		}
	}()

	res := s.Prober.Probe(ctx, t)
	metrics.ProbeLatency.WithLabelValues(t.Name).Observe(res.Elapsed.Seconds())
	if !res.Up() {
		metrics.ProbeFailures.WithLabelValues(res.Error).Inc()
		s.Logger.Debug("probe_failed", zap.String("site", t.Name), zap.String("url", t.URL), zap.String("reason", res.Reason()))
	}

	if err := s.Tracker.Apply(ctx, t.Name, res, s.now()); err != nil {
		s.Logger.Warn("scheduler_apply_error",
			zap.String("site", t.Name),
			zap.String("url", t.URL),
			zap.Error(err),
		)
		return siteFailed
	}

	fields := []zap.Field{
		zap.String("site", t.Name),
		zap.Bool("up", res.Up()),
		zap.Duration("elapsed", res.Elapsed),
	}
	if res.StatusCode != nil {
		fields = append(fields, zap.Int("status", *res.StatusCode))
	}
	s.Logger.Debug("scheduler_checked", fields...)
	if res.Up() {
		return siteOnline
	}
	return siteDown
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.History == nil || s.Retention <= 0 || ctx.Err() != nil {
		return
	}
	n, err := s.History.PruneHistory(ctx, s.now().Add(-s.Retention))
	if err != nil {
		s.Logger.Warn("scheduler_prune_error", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.HistoryPruned.Add(float64(n))
		s.Logger.Info("scheduler_history_pruned", zap.Int64("records", n))
	}
}
