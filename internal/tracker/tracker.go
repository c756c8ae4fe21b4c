// Package tracker turns probe results into persisted site state, history and
// incidents.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/metrics"
	"github.com/hamed0406/statusmonitor/internal/probe"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

// Policy decides when last_change moves.
type Policy string

const (
	// ResetOnTransition moves last_change only when the status changes.
	ResetOnTransition Policy = "transition"
	// ResetEveryCheck moves last_change on every probe.
	ResetEveryCheck Policy = "every_check"
)

// Updater runs fn as one serialised unit of work for a site.
type Updater interface {
	Update(ctx context.Context, name string, fn func(context.Context, repo.SiteTx) error) error
}

type Tracker struct {
	sites  Updater
	log    *zap.Logger
	policy Policy
	newID  func() string

	// OnTransition, when set, is called after a transition has been
	// committed. It runs on the scheduler goroutine and must not block.
	OnTransition func(domain.Transition)
}

func New(sites Updater, log *zap.Logger, policy Policy) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if policy != ResetEveryCheck {
		policy = ResetOnTransition
	}
	return &Tracker{sites: sites, log: log, policy: policy, newID: uuid.NewString}
}

// Apply records one probe result for site name observed at now.
//
// Time since the previous probe is charged to the status that held during
// it. The site row, its history record and any incident change are written
// in one unit of work; on error nothing is persisted.
func (t *Tracker) Apply(ctx context.Context, name string, res probe.Result, now time.Time) error {
	var tr *domain.Transition
	err := t.sites.Update(ctx, name, func(ctx context.Context, tx repo.SiteTx) error {
		tr = nil
		cur := tx.Site()
		next := Advance(cur, res, now, t.policy)

		if err := tx.SaveSite(ctx, next); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, historyRecord(name, res, now)); err != nil {
			return err
		}
		if cur.Status == next.Status {
			return nil
		}

		inc, err := t.handleIncident(ctx, tx, cur.Status, next.Status, res, now)
		if err != nil {
			return err
		}
		tr = &domain.Transition{
			Site:         name,
			URL:          next.URL,
			From:         cur.Status,
			To:           next.Status,
			At:           now,
			StatusCode:   next.StatusCode,
			ResponseTime: next.ResponseTime,
			Reason:       res.Reason(),
			Incident:     inc,
		}
		return nil
	})

	// The probe happened whether or not it could be stored.
	status := res.Status()
	metrics.Probes.WithLabelValues(name, string(status)).Inc()
	if status == domain.StatusOnline {
		metrics.SiteUp.WithLabelValues(name).Set(1)
	} else {
		metrics.SiteUp.WithLabelValues(name).Set(0)
	}
	if err != nil {
		metrics.TrackerErrors.Inc()
		return fmt.Errorf("apply %q: %w", name, err)
	}

	if tr != nil {
		metrics.Transitions.WithLabelValues(string(tr.To)).Inc()
		t.log.Info("tracker_transition",
			zap.String("site", name),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.String("reason", tr.Reason),
		)
		if t.OnTransition != nil {
			t.OnTransition(*tr)
		}
	}
	return nil
}

// Advance computes the site state after res was observed at now.
func Advance(cur domain.Site, res probe.Result, now time.Time, policy Policy) domain.Site {
	next := cur

	elapsed := now.Sub(cur.AccrualAnchor())
	if elapsed < 0 {
		elapsed = 0
	}
	switch cur.Status {
	case domain.StatusOnline:
		next.TotalUptime += elapsed
	case domain.StatusDown:
		next.TotalDowntime += elapsed
	}

	next.Status = res.Status()
	if next.Status != cur.Status || policy == ResetEveryCheck {
		next.LastChange = now
	}
	next.LastChecked = now
	next.ResponseTime = res.ResponseSeconds()
	next.StatusCode = res.StatusCode
	next.UpdatedAt = now
	return next
}

func historyRecord(name string, res probe.Result, now time.Time) domain.StatusHistoryRecord {
	rec := domain.StatusHistoryRecord{
		Site:         name,
		Status:       res.Status(),
		ResponseTime: res.ResponseSeconds(),
		StatusCode:   res.StatusCode,
		CheckedAt:    now,
	}
	if !res.Up() {
		rec.ErrorMessage = res.Reason()
	}
	return rec
}

func (t *Tracker) handleIncident(ctx context.Context, tx repo.SiteTx, from, to domain.Status, res probe.Result, now time.Time) (*domain.Incident, error) {
	site := tx.Site().Name
	switch {
	case to == domain.StatusDown:
		open, err := tx.OpenIncident(ctx)
		if err != nil {
			return nil, err
		}
		if open != nil {
			// left over from an earlier run; keep counting it
			t.log.Warn("tracker_incident_already_open", zap.String("site", site), zap.String("incident", open.ID))
			return open, nil
		}
		inc := domain.Incident{
			ID:          t.newID(),
			Site:        site,
			StartTime:   now,
			Description: "Site went down: " + res.Reason(),
			Severity:    domain.SeverityMinor,
		}
		if err := tx.CreateIncident(ctx, inc); err != nil {
			return nil, err
		}
		return &inc, nil

	case from == domain.StatusDown && to == domain.StatusOnline:
		open, err := tx.OpenIncident(ctx)
		if err != nil {
			return nil, err
		}
		if open == nil {
			t.log.Warn("tracker_no_open_incident", zap.String("site", site))
			return nil, nil
		}
		open.Resolve(now)
		if err := tx.UpdateIncident(ctx, *open); err != nil {
			return nil, err
		}
		return open, nil
	}
	// Unknown -> Online opens nothing
	return nil, nil
}
