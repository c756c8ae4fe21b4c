// Package repotest holds the behaviour every repo.Store implementation must
// share. Store packages call Run from their own tests.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) repo.Store) {
	t.Run("SeedIsIdempotent", func(t *testing.T) { seedIsIdempotent(t, open(t)) })
	t.Run("GetSiteNotFound", func(t *testing.T) { getSiteNotFound(t, open(t)) })
	t.Run("UpdateCommits", func(t *testing.T) { updateCommits(t, open(t)) })
	t.Run("UpdateRollsBack", func(t *testing.T) { updateRollsBack(t, open(t)) })
	t.Run("IncidentLifecycle", func(t *testing.T) { incidentLifecycle(t, open(t)) })
	t.Run("HistoryWindowAndPrune", func(t *testing.T) { historyWindowAndPrune(t, open(t)) })
}

func site(name string) domain.Site {
	return domain.NewSite(domain.Target{Name: name, URL: "https://" + name + ".example"}, base)
}

func seedIsIdempotent(t *testing.T, s repo.Store) {
	ctx := context.Background()
	n, err := s.SeedSites(ctx, []domain.Site{site("beta"), site("alpha")})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// mutate one row, then seed again
	require.NoError(t, s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
		cur := tx.Site()
		cur.Status = domain.StatusOnline
		cur.TotalUptime = 42 * time.Second
		return tx.SaveSite(ctx, cur)
	}))
	n, err = s.SeedSites(ctx, []domain.Site{site("alpha"), site("beta"), site("gamma")})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	all, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "alpha", all[0].Name)
	require.Equal(t, domain.StatusOnline, all[0].Status)
	require.Equal(t, 42*time.Second, all[0].TotalUptime)
	require.Equal(t, domain.StatusUnknown, all[2].Status)
	require.True(t, all[2].LastChange.Equal(base))
	require.False(t, all[2].Checked())
}

func getSiteNotFound(t *testing.T, s repo.Store) {
	_, err := s.GetSite(context.Background(), "missing")
	require.True(t, errors.Is(err, repo.ErrNotFound), "got %v", err)

	err = s.UpdateSite(context.Background(), "missing", func(context.Context, repo.SiteTx) error { return nil })
	require.True(t, errors.Is(err, repo.ErrNotFound), "got %v", err)
}

func updateCommits(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.SeedSites(ctx, []domain.Site{site("alpha")})
	require.NoError(t, err)

	checked := base.Add(time.Minute)
	code, rt := 200, 0.125
	require.NoError(t, s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
		cur := tx.Site()
		cur.Status = domain.StatusOnline
		cur.LastChange = checked
		cur.LastChecked = checked
		cur.TotalUptime = 90 * time.Second
		cur.TotalDowntime = 1500 * time.Millisecond
		cur.StatusCode = &code
		cur.ResponseTime = &rt
		if err := tx.SaveSite(ctx, cur); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, domain.StatusHistoryRecord{
			Site: "alpha", Status: domain.StatusOnline, StatusCode: &code, ResponseTime: &rt, CheckedAt: checked,
		})
	}))

	got, err := s.GetSite(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, domain.StatusOnline, got.Status)
	require.True(t, got.LastChecked.Equal(checked))
	require.Equal(t, 90*time.Second, got.TotalUptime)
	require.Equal(t, 1500*time.Millisecond, got.TotalDowntime)
	require.NotNil(t, got.StatusCode)
	require.Equal(t, 200, *got.StatusCode)
	require.InDelta(t, 0.125, *got.ResponseTime, 1e-9)

	hist, err := s.RecentHistory(ctx, "alpha", base, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.NotZero(t, hist[0].ID)
	require.Equal(t, domain.StatusOnline, hist[0].Status)
}

func updateRollsBack(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.SeedSites(ctx, []domain.Site{site("alpha")})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
		cur := tx.Site()
		cur.Status = domain.StatusDown
		if err := tx.SaveSite(ctx, cur); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, domain.StatusHistoryRecord{Site: "alpha", Status: domain.StatusDown, CheckedAt: base.Add(time.Second)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetSite(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnknown, got.Status)
	hist, err := s.RecentHistory(ctx, "alpha", base.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func incidentLifecycle(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.SeedSites(ctx, []domain.Site{site("alpha"), site("beta")})
	require.NoError(t, err)

	inc := domain.Incident{
		ID: uuid.NewString(), Site: "alpha", StartTime: base,
		Description: "Site went down: timeout", Severity: domain.SeverityMinor,
	}
	require.NoError(t, s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
		open, err := tx.OpenIncident(ctx)
		require.NoError(t, err)
		require.Nil(t, open)
		return tx.CreateIncident(ctx, inc)
	}))

	// a second unresolved incident for the same site is refused
	err = s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
		dup := inc
		dup.ID = uuid.NewString()
		return tx.CreateIncident(ctx, dup)
	})
	require.ErrorIs(t, err, repo.ErrConflict)

	open, err := s.UnresolvedIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, inc.ID, open[0].ID)
	require.Equal(t, domain.SeverityMinor, open[0].Severity)
	require.Nil(t, open[0].EndTime)

	end := base.Add(90 * time.Second)
	require.NoError(t, s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
		cur, err := tx.OpenIncident(ctx)
		if err != nil {
			return err
		}
		require.NotNil(t, cur)
		cur.Resolve(end)
		return tx.UpdateIncident(ctx, *cur)
	}))

	open, err = s.UnresolvedIncidents(ctx)
	require.NoError(t, err)
	require.Empty(t, open)

	all, err := s.SiteIncidents(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Resolved)
	require.NotNil(t, all[0].EndTime)
	require.True(t, all[0].EndTime.Equal(end))
	require.NotNil(t, all[0].Duration)
	require.Equal(t, 90*time.Second, *all[0].Duration)

	none, err := s.SiteIncidents(ctx, "beta", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func historyWindowAndPrune(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.SeedSites(ctx, []domain.Site{site("alpha"), site("beta")})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.UpdateSite(ctx, "alpha", func(ctx context.Context, tx repo.SiteTx) error {
			return tx.AppendHistory(ctx, domain.StatusHistoryRecord{Site: "alpha", Status: domain.StatusOnline, CheckedAt: at})
		}))
	}
	require.NoError(t, s.UpdateSite(ctx, "beta", func(ctx context.Context, tx repo.SiteTx) error {
		return tx.AppendHistory(ctx, domain.StatusHistoryRecord{Site: "beta", Status: domain.StatusDown, ErrorMessage: "dns: NXDOMAIN", CheckedAt: base})
	}))

	hist, err := s.RecentHistory(ctx, "alpha", base.Add(30*time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	// the newest three, oldest first
	require.True(t, hist[0].CheckedAt.Equal(base.Add(2*time.Hour)))
	require.True(t, hist[2].CheckedAt.Equal(base.Add(4*time.Hour)))

	beta, err := s.RecentHistory(ctx, "beta", base.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, beta, 1)
	require.Equal(t, "dns: NXDOMAIN", beta[0].ErrorMessage)
	require.Nil(t, beta[0].StatusCode)

	n, err := s.PruneHistory(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	hist, err = s.RecentHistory(ctx, "alpha", base.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
}
