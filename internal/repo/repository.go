package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// SiteTx is the unit of work for one site. All writes made through it are
// committed together when the function passed to UpdateSite returns nil and
// discarded otherwise.
type SiteTx interface {
	// Site is the state as read at the start of the unit of work.
	Site() domain.Site
	SaveSite(ctx context.Context, s domain.Site) error
	AppendHistory(ctx context.Context, r domain.StatusHistoryRecord) error
	// OpenIncident returns the unresolved incident of the site, or nil.
	OpenIncident(ctx context.Context) (*domain.Incident, error)
	CreateIncident(ctx context.Context, i domain.Incident) error
	UpdateIncident(ctx context.Context, i domain.Incident) error
}

// Ports (interfaces): swap in any DB adapter.
type SiteStore interface {
	// SeedSites inserts the sites that do not exist yet and leaves existing
	// rows untouched. It returns the number of inserted rows.
	SeedSites(ctx context.Context, sites []domain.Site) (int, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	GetSite(ctx context.Context, name string) (domain.Site, error)
	UpdateSite(ctx context.Context, name string, fn func(ctx context.Context, tx SiteTx) error) error
}

type HistoryStore interface {
	// RecentHistory returns at most limit records checked after since,
	// oldest first.
	RecentHistory(ctx context.Context, site string, since time.Time, limit int) ([]domain.StatusHistoryRecord, error)
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

type IncidentStore interface {
	// UnresolvedIncidents lists ongoing incidents, most recent first.
	UnresolvedIncidents(ctx context.Context) ([]domain.Incident, error)
	// SiteIncidents lists the latest incidents of one site, most recent first.
	SiteIncidents(ctx context.Context, site string, limit int) ([]domain.Incident, error)
}

type Store interface {
	SiteStore
	HistoryStore
	IncidentStore
	Ping(ctx context.Context) error
	Close() error
}
