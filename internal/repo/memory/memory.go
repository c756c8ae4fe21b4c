package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

// Store keeps everything in process memory. It backs tests and the
// "memory" store driver; nothing survives a restart.
type Store struct {
	mu        sync.RWMutex
	sites     map[string]*domain.Site
	history   []domain.StatusHistoryRecord
	incidents []*domain.Incident
	nextID    int64
}

func New() *Store {
	return &Store{
		sites:   make(map[string]*domain.Site),
		history: make([]domain.StatusHistoryRecord, 0, 128),
	}
}

func (m *Store) SeedSites(ctx context.Context, sites []domain.Site) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range sites {
		if _, ok := m.sites[s.Name]; ok {
			continue
		}
		cp := s
		m.sites[s.Name] = &cp
		n++
	}
	return n, nil
}

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Store) GetSite(ctx context.Context, name string) (domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[name]
	if !ok {
		return domain.Site{}, fmt.Errorf("site %q: %w", name, repo.ErrNotFound)
	}
	return *s, nil
}

// UpdateSite runs fn against staged copies and applies them only when fn
// succeeds. The store lock is held for the whole unit of work, so fn must
// not block on I/O.
func (m *Store) UpdateSite(ctx context.Context, name string, fn func(context.Context, repo.SiteTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[name]
	if !ok {
		return fmt.Errorf("site %q: %w", name, repo.ErrNotFound)
	}
	tx := &memTx{store: m, site: *s, next: *s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	*s = tx.next
	for _, r := range tx.history {
		m.nextID++
		r.ID = m.nextID
		m.history = append(m.history, r)
	}
	for _, inc := range tx.created {
		cp := inc
		m.incidents = append(m.incidents, &cp)
	}
	for _, inc := range tx.updated {
		for _, cur := range m.incidents {
			if cur.ID == inc.ID {
				*cur = inc
			}
		}
	}
	return nil
}

func (m *Store) RecentHistory(ctx context.Context, site string, since time.Time, limit int) ([]domain.StatusHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Walk newest to oldest so limit keeps the latest records.
	var out []domain.StatusHistoryRecord
	for i := len(m.history) - 1; i >= 0; i-- {
		r := m.history[i]
		if r.Site != site || !r.CheckedAt.After(since) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out, nil
}

func (m *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.history[:0]
	var n int64
	for _, r := range m.history {
		if r.CheckedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.history = kept
	return n, nil
}

func (m *Store) UnresolvedIncidents(ctx context.Context) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if !inc.Resolved {
			out = append(out, *inc)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *Store) SiteIncidents(ctx context.Context, site string, limit int) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if inc.Site == site {
			out = append(out, *inc)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Store) Close() error { return nil }

func sortNewestFirst(in []domain.Incident) {
	sort.SliceStable(in, func(i, j int) bool { return in[i].StartTime.After(in[j].StartTime) })
}

type memTx struct {
	store   *Store
	site    domain.Site
	next    domain.Site
	history []domain.StatusHistoryRecord
	created []domain.Incident
	updated []domain.Incident
}

func (t *memTx) Site() domain.Site { return t.site }

func (t *memTx) SaveSite(ctx context.Context, s domain.Site) error {
	if s.Name != t.site.Name {
		return fmt.Errorf("save site %q inside unit of work for %q: %w", s.Name, t.site.Name, repo.ErrConflict)
	}
	t.next = s
	return nil
}

func (t *memTx) AppendHistory(ctx context.Context, r domain.StatusHistoryRecord) error {
	t.history = append(t.history, r)
	return nil
}

func (t *memTx) OpenIncident(ctx context.Context) (*domain.Incident, error) {
	for i := len(t.updated) - 1; i >= 0; i-- {
		if !t.updated[i].Resolved {
			inc := t.updated[i]
			return &inc, nil
		}
	}
	for _, inc := range t.created {
		if !inc.Resolved {
			cp := inc
			return &cp, nil
		}
	}
	for _, inc := range t.store.incidents {
		if inc.Site == t.site.Name && !inc.Resolved && !t.isUpdated(inc.ID) {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) isUpdated(id string) bool {
	for _, u := range t.updated {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (t *memTx) CreateIncident(ctx context.Context, i domain.Incident) error {
	if !i.Resolved {
		open, err := t.OpenIncident(ctx)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("site %q already has incident %s: %w", t.site.Name, open.ID, repo.ErrConflict)
		}
	}
	t.created = append(t.created, i)
	return nil
}

func (t *memTx) UpdateIncident(ctx context.Context, i domain.Incident) error {
	for k := range t.created {
		if t.created[k].ID == i.ID {
			t.created[k] = i
			return nil
		}
	}
	for _, cur := range t.store.incidents {
		if cur.ID == i.ID {
			t.updated = append(t.updated, i)
			return nil
		}
	}
	return fmt.Errorf("incident %s: %w", i.ID, repo.ErrNotFound)
}
