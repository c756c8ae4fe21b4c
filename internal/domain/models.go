package domain

import "time"

// Status is the classified state of a monitored site.
type Status string

const (
	StatusUnknown Status = "Unknown"
	StatusOnline  Status = "Online"
	StatusDown    Status = "Down"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusDown:
		return true
	}
	return false
}

// Target is a monitored URL as read from configuration.
type Target struct {
	Name           string        `json:"name"`
	URL            string        `json:"url"`
	Timeout        time.Duration `json:"timeout"`
	ExpectedStatus int           `json:"expected_status,omitempty"`
}

// Site is the persisted state of one target. Name is the unique key.
//
// LastChecked is zero until the first probe. TotalUptime and TotalDowntime
// only grow; each is charged with the time between consecutive probes while
// the corresponding status held.
type Site struct {
	Name          string        `json:"name"`
	URL           string        `json:"url"`
	Status        Status        `json:"status"`
	LastChange    time.Time     `json:"last_change"`
	LastChecked   time.Time     `json:"last_checked"`
	TotalUptime   time.Duration `json:"total_uptime"`
	TotalDowntime time.Duration `json:"total_downtime"`
	ResponseTime  *float64      `json:"response_time"` // seconds
	StatusCode    *int          `json:"status_code"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Checked reports whether the site has been probed at least once.
func (s Site) Checked() bool { return !s.LastChecked.IsZero() }

// AccrualAnchor is the instant from which time is charged to the current
// status: the previous probe, or the last status change for a site that has
// never been probed.
func (s Site) AccrualAnchor() time.Time {
	if s.Checked() {
		return s.LastChecked
	}
	return s.LastChange
}

// NewSite builds the initial Unknown state for a freshly seeded target.
func NewSite(t Target, now time.Time) Site {
	return Site{
		Name:       t.Name,
		URL:        t.URL,
		Status:     StatusUnknown,
		LastChange: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StatusHistoryRecord is an append-only fact about one probe.
type StatusHistoryRecord struct {
	ID           int64     `json:"id,omitempty"`
	Site         string    `json:"site"`
	Status       Status    `json:"status"`
	ResponseTime *float64  `json:"response_time"`
	StatusCode   *int      `json:"status_code"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

const SeverityMinor = "minor"

// Incident is one contiguous Down period of a site. EndTime and Duration
// stay nil while the incident is ongoing.
type Incident struct {
	ID          string         `json:"id"`
	Site        string         `json:"site"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time"`
	Duration    *time.Duration `json:"duration"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Resolved    bool           `json:"resolved"`
}

// Resolve closes the incident at end.
func (i *Incident) Resolve(end time.Time) {
	d := end.Sub(i.StartTime)
	if d < 0 {
		d = 0
	}
	i.EndTime = &end
	i.Duration = &d
	i.Resolved = true
}

// Transition describes a status change observed by the tracker.
type Transition struct {
	Site         string    `json:"site"`
	URL          string    `json:"url"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	At           time.Time `json:"at"`
	StatusCode   *int      `json:"status_code,omitempty"`
	ResponseTime *float64  `json:"response_time,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Incident     *Incident `json:"incident,omitempty"`
}
