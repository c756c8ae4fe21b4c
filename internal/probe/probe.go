package probe

import (
	"context"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

// Outcome is the binary classification of a probe.
type Outcome string

const (
	OutcomeUp   Outcome = "Up"
	OutcomeDown Outcome = "Down"
)

// Failure classes reported in Result.Error.
const (
	ErrTimeout           = "timeout"
	ErrDNS               = "dns"
	ErrTLS               = "tls"
	ErrConnectionRefused = "connection_refused"
	ErrConnectionReset   = "connection_reset"
	ErrConnection        = "connection"
	ErrRedirect          = "redirect"
	ErrCanceled          = "canceled"
	ErrInvalidRequest    = "invalid_request"
	ErrHTTPStatus        = "http_status"
)

// Result is the outcome of a single probe.
//
// StatusCode is nil when no HTTP response was received. ResponseTime is the
// latency of a received response and nil on transport failure; Elapsed is
// always recorded.
type Result struct {
	Outcome      Outcome
	StatusCode   *int
	ResponseTime *time.Duration
	Elapsed      time.Duration
	Error        string // failure class, empty when Up
	Detail       string // raw status line or error text
	StartedAt    time.Time
}

func (r Result) Up() bool { return r.Outcome == OutcomeUp }

// Status maps the outcome onto a site status.
func (r Result) Status() domain.Status {
	if r.Up() {
		return domain.StatusOnline
	}
	return domain.StatusDown
}

// ResponseSeconds returns the response latency in seconds, or nil.
func (r Result) ResponseSeconds() *float64 {
	if r.ResponseTime == nil {
		return nil
	}
	s := r.ResponseTime.Seconds()
	return &s
}

// Reason is a short human readable explanation of a failure.
func (r Result) Reason() string {
	switch {
	case r.Error == "":
		return ""
	case r.Error == ErrTimeout:
		return ErrTimeout
	case r.Detail == "":
		return r.Error
	default:
		return r.Error + ": " + r.Detail
	}
}

// Prober performs a single check for a target.
type Prober interface {
	Probe(ctx context.Context, t domain.Target) Result
}

// IsUpStatus reports whether an HTTP status code counts as Up. A configured
// expected status always counts.
func IsUpStatus(code, expected int) bool {
	if expected != 0 && code == expected {
		return true
	}
	return code >= 200 && code < 400
}
