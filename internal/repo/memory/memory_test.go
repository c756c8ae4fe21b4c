package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
	"github.com/hamed0406/statusmonitor/internal/repo/repotest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return New() })
}

func TestMemoryStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	if _, err := s.SeedSites(ctx, []domain.Site{domain.NewSite(domain.Target{Name: "a", URL: "https://a.example"}, now)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpdateSite(ctx, "a", func(ctx context.Context, tx repo.SiteTx) error {
				cur := tx.Site()
				cur.TotalUptime += time.Second
				return tx.SaveSite(ctx, cur)
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetSite(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalUptime != 50*time.Second {
		t.Fatalf("lost updates: uptime=%v", got.TotalUptime)
	}
}

func TestMemoryStore_ListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.SeedSites(ctx, []domain.Site{domain.NewSite(domain.Target{Name: "a", URL: "https://a.example"}, time.Now())})

	all, _ := s.ListSites(ctx)
	all[0].Status = domain.StatusDown

	got, _ := s.GetSite(ctx, "a")
	if got.Status != domain.StatusUnknown {
		t.Fatalf("store state leaked through ListSites: %s", got.Status)
	}
}
