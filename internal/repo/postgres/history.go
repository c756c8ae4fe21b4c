package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

const (
	// newest rows inside the window, flipped back to oldest first
	qRecentHistory = `
SELECT id, site_name, status, response_time, status_code, error_message, checked_at
FROM (
  SELECT id, site_name, status, response_time, status_code, error_message, checked_at
  FROM status_history
  WHERE site_name = $1 AND checked_at > $2
  ORDER BY checked_at DESC, id DESC
  LIMIT $3
) recent
ORDER BY checked_at ASC, id ASC;
`
	qPruneHistory = `DELETE FROM status_history WHERE checked_at < $1;`
)

func (s *Store) RecentHistory(ctx context.Context, site string, since time.Time, limit int) ([]domain.StatusHistoryRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.pool.Query(ctx, qRecentHistory, site, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusHistoryRecord
	for rows.Next() {
		var (
			r      domain.StatusHistoryRecord
			status string
		)
		if err := rows.Scan(&r.ID, &r.Site, &status, &r.ResponseTime, &r.StatusCode, &r.ErrorMessage, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Status = domain.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, qPruneHistory, before)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}
