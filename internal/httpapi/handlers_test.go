package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hamed0406/statusmonitor/internal/domain"
	"github.com/hamed0406/statusmonitor/internal/probe"
	"github.com/hamed0406/statusmonitor/internal/query"
	"github.com/hamed0406/statusmonitor/internal/registry"
	"github.com/hamed0406/statusmonitor/internal/repo/memory"
	"github.com/hamed0406/statusmonitor/internal/tracker"
)

// ---- test helpers ----

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeHeartbeat struct{ err error }

func (f fakeHeartbeat) Alive(time.Time) error { return f.err }

type fixture struct {
	srv *Server
	ts  *httptest.Server
}

// newFixture seeds "alpha" (probed up, then down) and "beta" (never probed)
// and serves the router with the clock frozen at t0+50s.
func newFixture(t *testing.T, hb query.Heartbeat) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	reg := registry.New(store, nil)
	if _, err := reg.Seed(ctx, []domain.Target{
		{Name: "alpha", URL: "https://alpha.example"},
		{Name: "beta", URL: "https://beta.example"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tr := tracker.New(reg, nil, tracker.ResetOnTransition)
	code, rt := 200, 80*time.Millisecond
	up := probe.Result{Outcome: probe.OutcomeUp, StatusCode: &code, ResponseTime: &rt}
	down := probe.Result{Outcome: probe.OutcomeDown, Error: probe.ErrConnectionRefused, Detail: "connection refused"}
	if err := tr.Apply(ctx, "alpha", up, t0); err != nil {
		t.Fatalf("apply up: %v", err)
	}
	if err := tr.Apply(ctx, "alpha", down, t0.Add(30*time.Second)); err != nil {
		t.Fatalf("apply down: %v", err)
	}

	srv := NewServer(nil, query.New(reg, store, hb, nil), Options{
		AppName:       "Test Monitor",
		Version:       "1.0.0",
		CheckInterval: time.Minute,
		PushInterval:  20 * time.Millisecond,
	})
	srv.now = func() time.Time { return t0.Add(50 * time.Second) }

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts}
}

func (f *fixture) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

// ---- tests ----

func TestStatus(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})

	var body struct {
		Sites map[string]struct {
			URL           string   `json:"url"`
			Status        string   `json:"status"`
			Uptime        string   `json:"uptime"`
			Downtime      string   `json:"downtime"`
			UptimePercent string   `json:"uptime_percent"`
			LastChecked   *string  `json:"last_checked"`
			ResponseTime  *float64 `json:"response_time"`
			StatusCode    *int     `json:"status_code"`
		} `json:"sites"`
		OverallStatus string  `json:"overall_status"`
		Timestamp     string  `json:"timestamp"`
		App           string  `json:"app"`
		Version       string  `json:"version"`
		CheckInterval float64 `json:"check_interval"`
	}
	resp := f.get(t, "/api/status", &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body.OverallStatus != query.OverallDegraded {
		t.Fatalf("want degraded, got %q", body.OverallStatus)
	}
	if body.Version != "1.0.0" || body.CheckInterval != 60 || body.App != "Test Monitor" {
		t.Fatalf("unexpected metadata: %+v", body)
	}

	alpha := body.Sites["alpha"]
	if alpha.Status != "Down" || alpha.UptimePercent != "60.00%" {
		t.Fatalf("alpha: %+v", alpha)
	}
	if alpha.Uptime != "30s" || alpha.Downtime != "20s" {
		t.Fatalf("alpha durations: up=%q down=%q", alpha.Uptime, alpha.Downtime)
	}
	if alpha.LastChecked == nil || alpha.ResponseTime != nil || alpha.StatusCode != nil {
		t.Fatalf("alpha last probe fields: %+v", alpha)
	}

	beta := body.Sites["beta"]
	if beta.Status != "Unknown" || beta.UptimePercent != "100.00%" || beta.LastChecked != nil {
		t.Fatalf("beta: %+v", beta)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})

	var body struct {
		Site    string `json:"site"`
		Count   int    `json:"count"`
		History []struct {
			Status       string `json:"status"`
			ErrorMessage string `json:"error_message"`
		} `json:"history"`
		Incidents []struct {
			Description string `json:"description"`
			Resolved    bool   `json:"resolved"`
		} `json:"incidents"`
	}
	resp := f.get(t, "/api/history/alpha?limit=10", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if body.Site != "alpha" || body.Count != 2 || len(body.History) != 2 {
		t.Fatalf("unexpected history: %+v", body)
	}
	if body.History[0].Status != "Online" || body.History[1].Status != "Down" {
		t.Fatalf("history must be oldest first: %+v", body.History)
	}
	if body.History[1].ErrorMessage == "" {
		t.Fatalf("down record should carry the failure reason")
	}
	if len(body.Incidents) != 1 || body.Incidents[0].Resolved {
		t.Fatalf("want one open incident, got %+v", body.Incidents)
	}

	// limit keeps the newest records
	resp = f.get(t, "/api/history/alpha?limit=1", &body)
	if resp.StatusCode != http.StatusOK || body.Count != 1 || body.History[0].Status != "Down" {
		t.Fatalf("limit=1: %d %+v", resp.StatusCode, body)
	}
}

func TestHistory_Errors(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})

	var e struct {
		Error string `json:"error"`
	}
	if resp := f.get(t, "/api/history/nope", &e); resp.StatusCode != http.StatusNotFound || e.Error == "" {
		t.Fatalf("unknown site: %d %q", resp.StatusCode, e.Error)
	}
	if resp := f.get(t, "/api/history/alpha?limit=abc", &e); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: want 400, got %d", resp.StatusCode)
	}
	if resp := f.get(t, "/api/history/alpha?since=yesterday", &e); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad since: want 400, got %d", resp.StatusCode)
	}
}

func TestIncidents(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})

	var body struct {
		Count     int `json:"count"`
		Incidents []struct {
			Site            string  `json:"site_name"`
			Description     string  `json:"description"`
			Severity        string  `json:"severity"`
			Duration        string  `json:"duration"`
			DurationSeconds float64 `json:"duration_seconds"`
		} `json:"incidents"`
	}
	resp := f.get(t, "/api/incidents", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if body.Count != 1 || len(body.Incidents) != 1 {
		t.Fatalf("want one incident, got %+v", body)
	}
	inc := body.Incidents[0]
	if inc.Site != "alpha" || inc.Severity != domain.SeverityMinor {
		t.Fatalf("unexpected incident %+v", inc)
	}
	if !strings.HasPrefix(inc.Description, "Site went down: ") {
		t.Fatalf("unexpected description %q", inc.Description)
	}
	if inc.Duration != "20s" || inc.DurationSeconds != 20 {
		t.Fatalf("live duration: %q %v", inc.Duration, inc.DurationSeconds)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})
	var rep query.HealthReport
	resp := f.get(t, "/api/health", &rep)
	if resp.StatusCode != http.StatusOK || rep.Status != query.HealthHealthy || rep.MonitoredSites != 2 {
		t.Fatalf("healthy: %d %+v", resp.StatusCode, rep)
	}

	stalled := newFixture(t, fakeHeartbeat{err: errors.New("no sweep for 5m")})
	resp = stalled.get(t, "/api/health", &rep)
	if resp.StatusCode != http.StatusServiceUnavailable || rep.Status != query.HealthUnhealthy {
		t.Fatalf("stalled: %d %+v", resp.StatusCode, rep)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})

	var e map[string]string
	resp := f.get(t, "/api/nope", &e)
	if resp.StatusCode != http.StatusNotFound || e["error"] != "not found" {
		t.Fatalf("404: %d %v", resp.StatusCode, e)
	}

	post, err := http.Post(f.ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", post.StatusCode)
	}
	if ct := post.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("405 should be JSON, got %q", ct)
	}
}

func TestSecurityHeadersOnAPI(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})
	resp := f.get(t, "/api/health", nil)
	if got := resp.Header.Get("X-Powered-By"); got != "StatusMonitor/1.0.0" {
		t.Fatalf("X-Powered-By=%q", got)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff")
	}
}

func TestDashboardAndMetrics(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})

	resp := f.get(t, "/", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("dashboard: %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = f.get(t, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
}

func TestStatusWebsocket(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		var msg struct {
			OverallStatus string         `json:"overall_status"`
			Sites         map[string]any `json:"sites"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read push %d: %v", i, err)
		}
		if msg.OverallStatus != query.OverallDegraded || len(msg.Sites) != 2 {
			t.Fatalf("push %d: %+v", i, msg)
		}
	}
}

func TestStatusWebsocket_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, fakeHeartbeat{})
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatalf("foreign origin should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403, got %v", resp)
	}
}
