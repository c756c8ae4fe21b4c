package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

// Store implements repo.Store on a single SQLite file through gorm.
// One connection serialises all writers, which is what SQLite wants anyway.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open creates the database file and its parent directory when missing and
// migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&siteRow{}, &historyRow{}, &incidentRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	// at most one ongoing incident per site
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_open ON incidents (site_name) WHERE resolved = 0`).Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create incident index: %w", err)
	}
	log.Info("sqlite_ready", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.WithContext(ctx).Raw(`SELECT 1`).Scan(&one).Error; err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *Store) SeedSites(ctx context.Context, sites []domain.Site) (int, error) {
	n := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range sites {
			row := toSiteRow(st)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return fmt.Errorf("seed site %q: %w", st.Name, res.Error)
			}
			n += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	var rows []siteRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	out := make([]domain.Site, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetSite(ctx context.Context, name string) (domain.Site, error) {
	var row siteRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Site{}, fmt.Errorf("site %q: %w", name, repo.ErrNotFound)
	}
	if err != nil {
		return domain.Site{}, fmt.Errorf("get site %q: %w", name, err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateSite(ctx context.Context, name string, fn func(context.Context, repo.SiteTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row siteRow
		err := tx.First(&row, "name = ?", name).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("site %q: %w", name, repo.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get site %q: %w", name, err)
		}
		return fn(ctx, &sqliteTx{db: tx, site: row.toDomain()})
	})
}

func (s *Store) RecentHistory(ctx context.Context, site string, since time.Time, limit int) ([]domain.StatusHistoryRecord, error) {
	q := s.db.WithContext(ctx).
		Where("site_name = ? AND checked_at > ?", site, since.UTC()).
		Order("checked_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []historyRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	out := make([]domain.StatusHistoryRecord, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("checked_at < ?", before.UTC()).Delete(&historyRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) UnresolvedIncidents(ctx context.Context) ([]domain.Incident, error) {
	var rows []incidentRow
	if err := s.db.WithContext(ctx).Where("resolved = ?", false).Order("start_time DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	return incidents(rows), nil
}

func (s *Store) SiteIncidents(ctx context.Context, site string, limit int) ([]domain.Incident, error) {
	q := s.db.WithContext(ctx).Where("site_name = ?", site).Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []incidentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	return incidents(rows), nil
}

func incidents(rows []incidentRow) []domain.Incident {
	out := make([]domain.Incident, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

type sqliteTx struct {
	db   *gorm.DB
	site domain.Site
}

func (t *sqliteTx) Site() domain.Site { return t.site }

func (t *sqliteTx) SaveSite(ctx context.Context, s domain.Site) error {
	if s.Name != t.site.Name {
		return fmt.Errorf("save site %q inside unit of work for %q: %w", s.Name, t.site.Name, repo.ErrConflict)
	}
	row := toSiteRow(s)
	if err := t.db.Save(&row).Error; err != nil {
		return fmt.Errorf("update site %q: %w", s.Name, err)
	}
	return nil
}

func (t *sqliteTx) AppendHistory(ctx context.Context, r domain.StatusHistoryRecord) error {
	row := toHistoryRow(t.site.Name, r)
	if err := t.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (t *sqliteTx) OpenIncident(ctx context.Context) (*domain.Incident, error) {
	var row incidentRow
	err := t.db.Where("site_name = ? AND resolved = ?", t.site.Name, false).Order("start_time DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}
	inc := row.toDomain()
	return &inc, nil
}

func (t *sqliteTx) CreateIncident(ctx context.Context, i domain.Incident) error {
	if !i.Resolved {
		open, err := t.OpenIncident(ctx)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("site %q already has incident %s: %w", t.site.Name, open.ID, repo.ErrConflict)
		}
	}
	row := toIncidentRow(t.site.Name, i)
	if err := t.db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateIncident(ctx context.Context, i domain.Incident) error {
	row := toIncidentRow(t.site.Name, i)
	res := t.db.Model(&incidentRow{}).Where("id = ?", i.ID).Updates(map[string]any{
		"end_time":         row.EndTime,
		"duration_seconds": row.DurationSeconds,
		"description":      row.Description,
		"severity":         row.Severity,
		"resolved":         row.Resolved,
	})
	if res.Error != nil {
		return fmt.Errorf("update incident: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("incident %s: %w", i.ID, repo.ErrNotFound)
	}
	return nil
}
