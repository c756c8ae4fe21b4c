package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

const (
	siteColumns = `name, url, status, last_change, last_checked, total_uptime_seconds,
       total_downtime_seconds, response_time, status_code, created_at, updated_at`

	qSeedSite = `
INSERT INTO sites (name, url, status, last_change, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO NOTHING;
`
	qListSites   = `SELECT ` + siteColumns + ` FROM sites ORDER BY name;`
	qGetSite     = `SELECT ` + siteColumns + ` FROM sites WHERE name = $1;`
	qLockSite    = `SELECT ` + siteColumns + ` FROM sites WHERE name = $1 FOR UPDATE;`
	qUpdateSite  = `
UPDATE sites
SET url = $2, status = $3, last_change = $4, last_checked = $5,
    total_uptime_seconds = $6, total_downtime_seconds = $7,
    response_time = $8, status_code = $9, updated_at = $10
WHERE name = $1;
`
)

func scanSite(row pgx.Row) (domain.Site, error) {
	var (
		s           domain.Site
		status      string
		lastChecked *time.Time
		up, down    float64
	)
	if err := row.Scan(&s.Name, &s.URL, &status, &s.LastChange, &lastChecked, &up, &down,
		&s.ResponseTime, &s.StatusCode, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Site{}, repo.ErrNotFound
		}
		return domain.Site{}, fmt.Errorf("scan site: %w", err)
	}
	s.Status = domain.Status(status)
	if lastChecked != nil {
		s.LastChecked = *lastChecked
	}
	s.TotalUptime = fromSeconds(up)
	s.TotalDowntime = fromSeconds(down)
	return s, nil
}

func (s *Store) SeedSites(ctx context.Context, sites []domain.Site) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, st := range sites {
		tag, err := tx.Exec(ctx, qSeedSite, st.Name, st.URL, string(st.Status), st.LastChange, st.CreatedAt, st.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("seed site %q: %w", st.Name, err)
		}
		n += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return n, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, qListSites)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		st, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetSite(ctx context.Context, name string) (domain.Site, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	st, err := scanSite(s.pool.QueryRow(ctx, qGetSite, name))
	if err != nil {
		return domain.Site{}, fmt.Errorf("site %q: %w", name, err)
	}
	return st, nil
}

// UpdateSite locks the site row for the duration of fn.
func (s *Store) UpdateSite(ctx context.Context, name string, fn func(context.Context, repo.SiteTx) error) (txErr error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if txErr != nil {
			if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				s.log.Error("rollback", zapSite(name), zapErr(err))
			}
			return
		}
		if err := tx.Commit(ctx); err != nil {
			txErr = fmt.Errorf("commit site %q: %w", name, err)
		}
	}()

	cur, err := scanSite(tx.QueryRow(ctx, qLockSite, name))
	if err != nil {
		return fmt.Errorf("site %q: %w", name, err)
	}
	return fn(ctx, &pgTx{tx: tx, site: cur})
}
