// Package query derives the read-only views served by the API from the
// persisted site state: live uptime figures, history windows, ongoing
// incidents and health.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

const (
	OverallOperational = "operational"
	OverallDegraded    = "degraded"

	DefaultHistoryWindow = 24 * time.Hour
	DefaultHistoryLimit  = 100
	MaxHistoryLimit      = 500
	recentIncidents      = 10
)

// SiteReader is the read side of the site registry.
type SiteReader interface {
	Sites(ctx context.Context) ([]domain.Site, error)
	Site(ctx context.Context, name string) (domain.Site, error)
}

// Heartbeat reports whether the background scheduler is still cycling.
type Heartbeat interface {
	Alive(now time.Time) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	sites     SiteReader
	history   repo.HistoryStore
	incidents repo.IncidentStore
	db        Pinger
	heartbeat Heartbeat
	log       *zap.Logger
}

// New wires the service. heartbeat may be nil when no scheduler runs in
// this process.
func New(sites SiteReader, store repo.Store, heartbeat Heartbeat, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{sites: sites, history: store, incidents: store, db: store, heartbeat: heartbeat, log: log}
}

type SiteView struct {
	Name            string        `json:"name"`
	URL             string        `json:"url"`
	Status          domain.Status `json:"status"`
	Uptime          string        `json:"uptime"`
	Downtime        string        `json:"downtime"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	DowntimeSeconds float64       `json:"downtime_seconds"`
	UptimePercent   string        `json:"uptime_percent"`
	LastChecked     *time.Time    `json:"last_checked"`
	LastCheckedAgo  string        `json:"last_checked_ago"`
	LastChange      time.Time     `json:"last_change"`
	ResponseTime    *float64      `json:"response_time"`
	StatusCode      *int          `json:"status_code"`

	percent float64
}

// Percent is the numeric uptime percentage behind UptimePercent.
func (v SiteView) Percent() float64 { return v.percent }

type Snapshot struct {
	Sites         map[string]SiteView `json:"sites"`
	OverallStatus string              `json:"overall_status"`
	Timestamp     time.Time           `json:"timestamp"`
}

// Snapshot reports every site as of now.
func (s *Service) Snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	sites, err := s.sites.Sites(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list sites: %w", err)
	}
	out := Snapshot{
		Sites:         make(map[string]SiteView, len(sites)),
		OverallStatus: OverallOperational,
		Timestamp:     now,
	}
	for _, site := range sites {
		out.Sites[site.Name] = View(site, now)
		if site.Status != domain.StatusOnline {
			out.OverallStatus = OverallDegraded
		}
	}
	return out, nil
}

// View extrapolates the persisted totals up to now: the time since the
// last probe is added to the bucket of the current status.
func View(site domain.Site, now time.Time) SiteView {
	up, down := site.TotalUptime, site.TotalDowntime
	elapsed := now.Sub(site.AccrualAnchor())
	if elapsed < 0 {
		elapsed = 0
	}
	switch site.Status {
	case domain.StatusOnline:
		up += elapsed
	case domain.StatusDown:
		down += elapsed
	}

	pct := 100.0
	if total := up + down; total > 0 {
		pct = float64(up) / float64(total) * 100
	}

	v := SiteView{
		Name:            site.Name,
		URL:             site.URL,
		Status:          site.Status,
		Uptime:          FormatDuration(up),
		Downtime:        FormatDuration(down),
		UptimeSeconds:   up.Seconds(),
		DowntimeSeconds: down.Seconds(),
		UptimePercent:   FormatPercent(pct),
		LastCheckedAgo:  "never",
		LastChange:      site.LastChange,
		ResponseTime:    site.ResponseTime,
		StatusCode:      site.StatusCode,
		percent:         pct,
	}
	if site.Checked() {
		lc := site.LastChecked
		v.LastChecked = &lc
		v.LastCheckedAgo = humanize.RelTime(lc, now, "ago", "from now")
	}
	return v
}

type HistoryQuery struct {
	Since time.Time
	Limit int
}

// Normalize fills the defaults relative to now and caps the limit.
func (q HistoryQuery) Normalize(now time.Time) HistoryQuery {
	if q.Since.IsZero() {
		q.Since = now.Add(-DefaultHistoryWindow)
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultHistoryLimit
	case q.Limit > MaxHistoryLimit:
		q.Limit = MaxHistoryLimit
	}
	return q
}

type SiteHistory struct {
	Site      string                       `json:"site"`
	History   []domain.StatusHistoryRecord `json:"history"`
	Count     int                          `json:"count"`
	Incidents []IncidentView               `json:"incidents"`
}

// History returns the most recent records of one site, oldest first,
// together with its latest incidents. Unknown sites yield repo.ErrNotFound.
func (s *Service) History(ctx context.Context, name string, q HistoryQuery, now time.Time) (SiteHistory, error) {
	if _, err := s.sites.Site(ctx, name); err != nil {
		return SiteHistory{}, err
	}
	q = q.Normalize(now)
	recs, err := s.history.RecentHistory(ctx, name, q.Since, q.Limit)
	if err != nil {
		return SiteHistory{}, fmt.Errorf("history %q: %w", name, err)
	}
	incs, err := s.incidents.SiteIncidents(ctx, name, recentIncidents)
	if err != nil {
		return SiteHistory{}, fmt.Errorf("incidents %q: %w", name, err)
	}
	if recs == nil {
		recs = []domain.StatusHistoryRecord{}
	}
	return SiteHistory{Site: name, History: recs, Count: len(recs), Incidents: incidentViews(incs, now)}, nil
}

type IncidentView struct {
	ID              string     `json:"id"`
	Site            string     `json:"site_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Duration        string     `json:"duration"`
	DurationSeconds float64    `json:"duration_seconds"`
	Description     string     `json:"description"`
	Severity        string     `json:"severity"`
	Resolved        bool       `json:"resolved"`
}

// OpenIncidents lists ongoing incidents, most recent first, with their
// duration measured up to now.
func (s *Service) OpenIncidents(ctx context.Context, now time.Time) ([]IncidentView, error) {
	incs, err := s.incidents.UnresolvedIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("unresolved incidents: %w", err)
	}
	return incidentViews(incs, now), nil
}

func incidentViews(incs []domain.Incident, now time.Time) []IncidentView {
	out := make([]IncidentView, 0, len(incs))
	for _, inc := range incs {
		d := now.Sub(inc.StartTime)
		if inc.Duration != nil {
			d = *inc.Duration
		}
		if d < 0 {
			d = 0
		}
		out = append(out, IncidentView{
			ID:              inc.ID,
			Site:            inc.Site,
			StartTime:       inc.StartTime,
			EndTime:         inc.EndTime,
			Duration:        FormatDuration(d),
			DurationSeconds: d.Seconds(),
			Description:     inc.Description,
			Severity:        inc.Severity,
			Resolved:        inc.Resolved,
		})
	}
	return out
}

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

type HealthReport struct {
	Status         string    `json:"status"`
	Database       string    `json:"database"`
	Scheduler      string    `json:"scheduler"`
	MonitoredSites int       `json:"monitored_sites"`
	Timestamp      time.Time `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
}

func (h HealthReport) Healthy() bool { return h.Status == HealthHealthy }

// Health checks the store and the scheduler heartbeat.
func (s *Service) Health(ctx context.Context, now time.Time) HealthReport {
	rep := HealthReport{Status: HealthHealthy, Database: "connected", Scheduler: "running", Timestamp: now}

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("health_db_failed", zap.Error(err))
		rep.Status, rep.Database, rep.Error = HealthUnhealthy, "unreachable", err.Error()
		return rep
	}
	if sites, err := s.sites.Sites(ctx); err == nil {
		rep.MonitoredSites = len(sites)
	}
	if s.heartbeat == nil {
		rep.Scheduler = "disabled"
		return rep
	}
	if err := s.heartbeat.Alive(now); err != nil {
		s.log.Warn("health_scheduler_failed", zap.Error(err))
		rep.Status, rep.Scheduler, rep.Error = HealthUnhealthy, "stalled", err.Error()
	}
	return rep
}
