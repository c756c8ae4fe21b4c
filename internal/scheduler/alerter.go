package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/metrics"
	"github.com/hamed0406/statusmonitor/internal/notify"
	"github.com/hamed0406/statusmonitor/internal/query"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	// EveryTransition forwards each transition unfiltered, ignoring Cooldown
	// and AlertOnRecovery. Used for event sinks such as Kafka.
	EveryTransition bool
	// Buffer is the number of transitions queued before new ones are dropped.
	Buffer int
}

// Alerter turns committed transitions into notifications. Down alerts are
// rate limited per site by Cooldown; recovery alerts bypass it. With
// EveryTransition set, every transition is forwarded as is.
type Alerter struct {
	notifier notify.Notifier
	cfg      AlerterConfig
	log      *zap.Logger
	events   chan domain.Transition
	now      func() time.Time

	mu       sync.Mutex
	lastDown map[string]time.Time
}

func NewAlerter(notifier notify.Notifier, cfg AlerterConfig, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Alerter{
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		events:   make(chan domain.Transition, cfg.Buffer),
		now:      func() time.Time { return time.Now().UTC() },
		lastDown: make(map[string]time.Time),
	}
}

// Enqueue hands a transition to the alerter without blocking the caller.
func (a *Alerter) Enqueue(tr domain.Transition) {
	select {
	case a.events <- tr:
	default:
		metrics.AlertErrors.Inc()
		a.log.Warn("alerter_queue_full", zap.String("site", tr.Site), zap.String("to", string(tr.To)))
	}
}

// EnqueueAll returns a transition hook that hands each transition to every
// alerter. nil alerters are skipped.
func EnqueueAll(alerters ...*Alerter) func(domain.Transition) {
	var live []*Alerter
	for _, a := range alerters {
		if a != nil {
			live = append(live, a)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(tr domain.Transition) {
		for _, a := range live {
			a.Enqueue(tr)
		}
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tr := <-a.events:
			a.handle(ctx, tr)
		}
	}
}

func (a *Alerter) handle(ctx context.Context, tr domain.Transition) {
	alert, ok := a.decide(tr)
	if !ok {
		return
	}
	// Best-effort send
	if err := a.notifier.Send(ctx, alert); err != nil {
		metrics.AlertErrors.Inc()
		a.log.Warn("alerter_send_error", zap.String("site", tr.Site), zap.String("kind", alert.Kind), zap.Error(err))
		return
	}
	metrics.AlertsSent.WithLabelValues(alert.Kind).Inc()
	a.log.Info("alerter_sent", zap.String("site", tr.Site), zap.String("kind", alert.Kind))
}

// decide picks the alert for a transition, if any, and records the send
// time of down alerts.
func (a *Alerter) decide(tr domain.Transition) (notify.Alert, bool) {
	if a.cfg.EveryTransition {
		return transitionAlert(tr), true
	}
	switch {
	case tr.To == domain.StatusDown:
		now := a.now()
		a.mu.Lock()
		last, seen := a.lastDown[tr.Site]
		cooled := !seen || now.Sub(last) >= a.cfg.Cooldown
		if cooled {
			a.lastDown[tr.Site] = now
		}
		a.mu.Unlock()
		if !cooled {
			a.log.Debug("alerter_cooldown", zap.String("site", tr.Site))
			return notify.Alert{}, false
		}
		return notify.Alert{Kind: notify.KindDown, Title: "🔴 Site DOWN", Text: alertText(tr), Transition: tr}, true

	case tr.From == domain.StatusDown && tr.To == domain.StatusOnline && a.cfg.AlertOnRecovery:
		return notify.Alert{Kind: notify.KindRecovery, Title: "🟢 Site RECOVERED", Text: alertText(tr), Transition: tr}, true
	}
	return notify.Alert{}, false
}

func transitionAlert(tr domain.Transition) notify.Alert {
	switch {
	case tr.To == domain.StatusDown:
		return notify.Alert{Kind: notify.KindDown, Title: "🔴 Site DOWN", Text: alertText(tr), Transition: tr}
	case tr.From == domain.StatusDown:
		return notify.Alert{Kind: notify.KindRecovery, Title: "🟢 Site RECOVERED", Text: alertText(tr), Transition: tr}
	default:
		return notify.Alert{Kind: notify.KindUp, Title: "🟢 Site UP", Text: alertText(tr), Transition: tr}
	}
}

func alertText(tr domain.Transition) string {
	httpTxt := "n/a"
	if tr.StatusCode != nil {
		httpTxt = fmt.Sprintf("%d", *tr.StatusCode)
	}
	latencyTxt := "n/a"
	if tr.ResponseTime != nil {
		latencyTxt = fmt.Sprintf("%.0f ms", *tr.ResponseTime*1000)
	}
	reason := tr.Reason
	if reason == "" {
		reason = "ok"
	}
	text := fmt.Sprintf(
		"Site: %s\nURL: %s\nHTTP: %s\nLatency: %s\nReason: %s\nChecked: %s",
		tr.Site, tr.URL, httpTxt, latencyTxt, reason, tr.At.Format(time.RFC3339),
	)
	if inc := tr.Incident; inc != nil && inc.Duration != nil {
		text += "\nDowntime: " + query.FormatDuration(*inc.Duration)
	}
	return text
}
