package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseHistoryQuery(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		raw       string
		wantSince time.Time
		wantLimit int
		wantErr   bool
	}{
		{"", time.Time{}, 0, false},
		{"?since=6h", now.Add(-6 * time.Hour), 0, false},
		{"?since=2025-05-31T12:00:00Z&limit=50", now.Add(-24 * time.Hour), 50, false},
		{"?limit=0", time.Time{}, 0, true},
		{"?limit=-3", time.Time{}, 0, true},
		{"?since=-1h", time.Time{}, 0, true},
		{"?since=garbage", time.Time{}, 0, true},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/history/x"+c.raw, nil)
		q, err := parseHistoryQuery(r, now)
		if (err != nil) != c.wantErr {
			t.Fatalf("%q: err=%v wantErr=%v", c.raw, err, c.wantErr)
		}
		if c.wantErr {
			continue
		}
		if !q.Since.Equal(c.wantSince) || q.Limit != c.wantLimit {
			t.Fatalf("%q: got since=%v limit=%d", c.raw, q.Since, q.Limit)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(nil, nil, Options{AllowedOrigins: []string{"https://status.example"}})
	cases := []struct {
		host, origin string
		want         bool
	}{
		{"monitor.local:8080", "", true},
		{"monitor.local:8080", "http://monitor.local:8080", true},
		{"monitor.local:8080", "https://status.example", true},
		{"monitor.local:8080", "https://evil.example", false},
		{"monitor.local:8080", "://bad", false},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		r.Host = c.host
		if c.origin != "" {
			r.Header.Set("Origin", c.origin)
		}
		if got := s.checkOrigin(r); got != c.want {
			t.Fatalf("host=%q origin=%q: got %v want %v", c.host, c.origin, got, c.want)
		}
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	s := NewServer(nil, nil, Options{AllowedOrigins: []string{"https://status.example"}})
	h := s.Router()

	r := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	r.Header.Set("Origin", "https://status.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://status.example" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}
}
