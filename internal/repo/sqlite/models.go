package sqlite

import (
	"math"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

type siteRow struct {
	Name                 string `gorm:"primaryKey"`
	URL                  string `gorm:"not null"`
	Status               string `gorm:"not null;default:Unknown"`
	LastChange           time.Time
	LastChecked          *time.Time
	TotalUptimeSeconds   float64
	TotalDowntimeSeconds float64
	ResponseTime         *float64
	StatusCode           *int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (siteRow) TableName() string { return "sites" }

type historyRow struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	SiteName     string    `gorm:"not null;index:idx_history_site_time,priority:1"`
	Status       string    `gorm:"not null"`
	ResponseTime *float64
	StatusCode   *int
	ErrorMessage string
	CheckedAt    time.Time `gorm:"not null;index:idx_history_site_time,priority:2;index:idx_history_checked_at"`
}

func (historyRow) TableName() string { return "status_history" }

type incidentRow struct {
	ID              string    `gorm:"primaryKey"`
	SiteName        string    `gorm:"not null;index:idx_incidents_site_start,priority:1"`
	StartTime       time.Time `gorm:"not null;index:idx_incidents_site_start,priority:2"`
	EndTime         *time.Time
	DurationSeconds *float64
	Description     string
	Severity        string `gorm:"not null;default:minor"`
	Resolved        bool   `gorm:"not null;default:false"`
}

func (incidentRow) TableName() string { return "incidents" }

func toSiteRow(s domain.Site) siteRow {
	r := siteRow{
		Name:                 s.Name,
		URL:                  s.URL,
		Status:               string(s.Status),
		LastChange:           s.LastChange.UTC(),
		TotalUptimeSeconds:   s.TotalUptime.Seconds(),
		TotalDowntimeSeconds: s.TotalDowntime.Seconds(),
		ResponseTime:         s.ResponseTime,
		StatusCode:           s.StatusCode,
		CreatedAt:            s.CreatedAt.UTC(),
		UpdatedAt:            s.UpdatedAt.UTC(),
	}
	if s.Checked() {
		lc := s.LastChecked.UTC()
		r.LastChecked = &lc
	}
	return r
}

func (r siteRow) toDomain() domain.Site {
	s := domain.Site{
		Name:          r.Name,
		URL:           r.URL,
		Status:        domain.Status(r.Status),
		LastChange:    r.LastChange,
		TotalUptime:   fromSeconds(r.TotalUptimeSeconds),
		TotalDowntime: fromSeconds(r.TotalDowntimeSeconds),
		ResponseTime:  r.ResponseTime,
		StatusCode:    r.StatusCode,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LastChecked != nil {
		s.LastChecked = *r.LastChecked
	}
	return s
}

func toHistoryRow(site string, h domain.StatusHistoryRecord) historyRow {
	return historyRow{
		SiteName:     site,
		Status:       string(h.Status),
		ResponseTime: h.ResponseTime,
		StatusCode:   h.StatusCode,
		ErrorMessage: h.ErrorMessage,
		CheckedAt:    h.CheckedAt.UTC(),
	}
}

func (r historyRow) toDomain() domain.StatusHistoryRecord {
	return domain.StatusHistoryRecord{
		ID:           r.ID,
		Site:         r.SiteName,
		Status:       domain.Status(r.Status),
		ResponseTime: r.ResponseTime,
		StatusCode:   r.StatusCode,
		ErrorMessage: r.ErrorMessage,
		CheckedAt:    r.CheckedAt,
	}
}

func toIncidentRow(site string, i domain.Incident) incidentRow {
	r := incidentRow{
		ID:          i.ID,
		SiteName:    site,
		StartTime:   i.StartTime.UTC(),
		Description: i.Description,
		Severity:    i.Severity,
		Resolved:    i.Resolved,
	}
	if i.EndTime != nil {
		end := i.EndTime.UTC()
		r.EndTime = &end
	}
	if i.Duration != nil {
		d := i.Duration.Seconds()
		r.DurationSeconds = &d
	}
	return r
}

func (r incidentRow) toDomain() domain.Incident {
	i := domain.Incident{
		ID:          r.ID,
		Site:        r.SiteName,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Description: r.Description,
		Severity:    r.Severity,
		Resolved:    r.Resolved,
	}
	if r.DurationSeconds != nil {
		d := fromSeconds(*r.DurationSeconds)
		i.Duration = &d
	}
	return i
}

func fromSeconds(f float64) time.Duration {
	return time.Duration(math.Round(f * float64(time.Second)))
}
