package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

const (
	incidentColumns = `id, site_name, start_time, end_time, duration_seconds, description, severity, resolved`

	qUnresolved = `SELECT ` + incidentColumns + `
FROM incidents
WHERE NOT resolved
ORDER BY start_time DESC;
`
	qSiteIncidents = `SELECT ` + incidentColumns + `
FROM incidents
WHERE site_name = $1
ORDER BY start_time DESC
LIMIT $2;
`
)

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var (
		i   domain.Incident
		dur *float64
	)
	if err := row.Scan(&i.ID, &i.Site, &i.StartTime, &i.EndTime, &dur, &i.Description, &i.Severity, &i.Resolved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, repo.ErrNotFound
		}
		return domain.Incident{}, fmt.Errorf("scan incident: %w", err)
	}
	if dur != nil {
		d := fromSeconds(*dur)
		i.Duration = &d
	}
	return i, nil
}

func (s *Store) queryIncidents(ctx context.Context, q string, args ...any) ([]domain.Incident, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *Store) UnresolvedIncidents(ctx context.Context) ([]domain.Incident, error) {
	return s.queryIncidents(ctx, qUnresolved)
}

func (s *Store) SiteIncidents(ctx context.Context, site string, limit int) ([]domain.Incident, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return s.queryIncidents(ctx, qSiteIncidents, site, limit)
}
