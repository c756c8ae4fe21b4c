// Package registry owns the set of monitored sites: the ordered targets from
// configuration and their persisted state.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

type Registry struct {
	store repo.SiteStore
	log   *zap.Logger
	now   func() time.Time

	mu      sync.RWMutex
	targets []domain.Target
	byName  map[string]domain.Target

	locks sync.Map // site name -> *sync.Mutex
}

func New(store repo.SiteStore, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:  store,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		byName: make(map[string]domain.Target),
	}
}

// Seed registers targets in order and inserts a Unknown row for every site
// the store does not know yet. Existing rows keep their counters, so seeding
// again after a restart is a no-op for them.
func (r *Registry) Seed(ctx context.Context, targets []domain.Target) (int, error) {
	now := r.now()
	seen := make(map[string]struct{}, len(targets))
	sites := make([]domain.Site, 0, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Name]; dup {
			return 0, fmt.Errorf("seed: duplicate site name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		sites = append(sites, domain.NewSite(t, now))
	}

	inserted, err := r.store.SeedSites(ctx, sites)
	if err != nil {
		return 0, fmt.Errorf("seed sites: %w", err)
	}

	r.mu.Lock()
	r.targets = append([]domain.Target(nil), targets...)
	r.byName = make(map[string]domain.Target, len(targets))
	for _, t := range targets {
		r.byName[t.Name] = t
	}
	r.mu.Unlock()

	existing, err := r.store.ListSites(ctx)
	if err != nil {
		return inserted, fmt.Errorf("list sites: %w", err)
	}
	for _, s := range existing {
		t, ok := r.Target(s.Name)
		switch {
		case !ok:
			r.log.Warn("registry_site_not_configured", zap.String("site", s.Name))
		case t.URL != s.URL:
			r.log.Warn("registry_url_changed",
				zap.String("site", s.Name), zap.String("stored", s.URL), zap.String("configured", t.URL))
		}
	}
	r.log.Info("registry_seeded", zap.Int("configured", len(targets)), zap.Int("inserted", inserted))
	return inserted, nil
}

// Targets returns the configured targets in configuration order.
func (r *Registry) Targets() []domain.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Target(nil), r.targets...)
}

func (r *Registry) Target(name string) (domain.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Sites returns the persisted state of every site, ordered by name.
func (r *Registry) Sites(ctx context.Context) ([]domain.Site, error) {
	return r.store.ListSites(ctx)
}

func (r *Registry) Site(ctx context.Context, name string) (domain.Site, error) {
	return r.store.GetSite(ctx, name)
}

// Update serialises writers of one site and runs fn inside a store unit of
// work. Different sites proceed in parallel.
func (r *Registry) Update(ctx context.Context, name string, fn func(context.Context, repo.SiteTx) error) error {
	mu := r.lock(name)
	mu.Lock()
	defer mu.Unlock()
	return r.store.UpdateSite(ctx, name, fn)
}

func (r *Registry) lock(name string) *sync.Mutex {
	if v, ok := r.locks.Load(name); ok {
		return v.(*sync.Mutex)
	}
	v, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}
