package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

const (
	qInsertHistory = `
INSERT INTO status_history (site_name, status, response_time, status_code, error_message, checked_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	qOpenIncident = `SELECT ` + incidentColumns + `
FROM incidents
WHERE site_name = $1 AND NOT resolved
ORDER BY start_time DESC
LIMIT 1;
`
	qInsertIncident = `
INSERT INTO incidents (id, site_name, start_time, end_time, duration_seconds, description, severity, resolved)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	qUpdateIncident = `
UPDATE incidents
SET end_time = $2, duration_seconds = $3, description = $4, severity = $5, resolved = $6
WHERE id = $1;
`
)

const uniqueViolation = "23505"

type pgTx struct {
	tx   pgx.Tx
	site domain.Site
}

func (t *pgTx) Site() domain.Site { return t.site }

func (t *pgTx) SaveSite(ctx context.Context, s domain.Site) error {
	if s.Name != t.site.Name {
		return fmt.Errorf("save site %q inside unit of work for %q: %w", s.Name, t.site.Name, repo.ErrConflict)
	}
	var lastChecked *time.Time
	if s.Checked() {
		lastChecked = &s.LastChecked
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, qUpdateSite, s.Name, s.URL, string(s.Status), s.LastChange, lastChecked,
		seconds(s.TotalUptime), seconds(s.TotalDowntime), s.ResponseTime, s.StatusCode, updated)
	if err != nil {
		return fmt.Errorf("update site %q: %w", s.Name, err)
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, r domain.StatusHistoryRecord) error {
	_, err := t.tx.Exec(ctx, qInsertHistory, t.site.Name, string(r.Status), r.ResponseTime, r.StatusCode, r.ErrorMessage, r.CheckedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (t *pgTx) OpenIncident(ctx context.Context) (*domain.Incident, error) {
	inc, err := scanIncident(t.tx.QueryRow(ctx, qOpenIncident, t.site.Name))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (t *pgTx) CreateIncident(ctx context.Context, i domain.Incident) error {
	_, err := t.tx.Exec(ctx, qInsertIncident, i.ID, t.site.Name, i.StartTime, i.EndTime,
		durationSeconds(i.Duration), i.Description, i.Severity, i.Resolved)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("site %q already has an open incident: %w", t.site.Name, repo.ErrConflict)
		}
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateIncident(ctx context.Context, i domain.Incident) error {
	tag, err := t.tx.Exec(ctx, qUpdateIncident, i.ID, i.EndTime, durationSeconds(i.Duration), i.Description, i.Severity, i.Resolved)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s: %w", i.ID, repo.ErrNotFound)
	}
	return nil
}

func durationSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := d.Seconds()
	return &v
}

func zapSite(name string) zap.Field { return zap.String("site", name) }
func zapErr(err error) zap.Field    { return zap.Error(err) }
