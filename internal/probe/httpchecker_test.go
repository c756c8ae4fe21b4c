package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

func target(url string, timeout time.Duration) domain.Target {
	return domain.Target{Name: "t", URL: url, Timeout: timeout}
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	var ua string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		if r.Method != http.MethodGet {
			t.Errorf("want GET, got %s", r.Method)
		}
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	chk := NewHTTPChecker(2*time.Second, 1)
	out := chk.Probe(context.Background(), target(s.URL, 0))
	if !out.Up() {
		t.Fatalf("want up, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", out.StatusCode)
	}
	if !strings.HasPrefix(out.Detail, "200") {
		t.Fatalf("want detail to start with 200, got %q", out.Detail)
	}
	if out.ResponseTime == nil || *out.ResponseTime < 0 {
		t.Fatalf("response time should be recorded, got %v", out.ResponseTime)
	}
	if out.StartedAt.IsZero() {
		t.Fatalf("start timestamp missing")
	}
	if !strings.HasPrefix(ua, "statusmonitor/") {
		t.Fatalf("unexpected user agent %q", ua)
	}
}

func TestHTTPChecker_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	chk := NewHTTPChecker(2*time.Second, 1)
	out := chk.Probe(context.Background(), target(s.URL, 0))
	if out.Up() {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 500 {
		t.Fatalf("want status 500, got %v", out.StatusCode)
	}
	if out.Error != ErrHTTPStatus || !strings.HasPrefix(out.Detail, "500") {
		t.Fatalf("want http_status/500, got %q %q", out.Error, out.Detail)
	}
}

func TestHTTPChecker_RedirectFollowed(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer final.Close()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second, 1).Probe(context.Background(), target(s.URL, 0))
	if !out.Up() || *out.StatusCode != http.StatusNoContent {
		t.Fatalf("redirect not followed: %+v", out)
	}
}

func TestHTTPChecker_ExpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer s.Close()

	tg := target(s.URL, 0)
	tg.ExpectedStatus = http.StatusUnauthorized
	out := NewHTTPChecker(2*time.Second, 1).Probe(context.Background(), tg)
	if !out.Up() {
		t.Fatalf("expected status should count as up: %+v", out)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	// Server sleeps longer than the target timeout
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer s.Close()
	defer close(release)

	chk := NewHTTPChecker(2*time.Second, 1)
	start := time.Now()
	out := chk.Probe(context.Background(), target(s.URL, 50*time.Millisecond))
	if out.Up() {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.Error != ErrTimeout || out.Reason() != "timeout" {
		t.Fatalf("want timeout class, got %q (%s)", out.Error, out.Detail)
	}
	if out.StatusCode != nil {
		t.Fatalf("status code must stay nil on timeout, got %d", *out.StatusCode)
	}
	if out.ResponseTime != nil {
		t.Fatalf("response time must be nil on failure")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honoured: took %v", time.Since(start))
	}
}

func TestHTTPChecker_SiteTimeoutLongerThanDefault(t *testing.T) {
	// Server answers after the checker default but within the site timeout
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	chk := NewHTTPChecker(50*time.Millisecond, 1)
	out := chk.Probe(context.Background(), target(s.URL, 2*time.Second))
	if !out.Up() {
		t.Fatalf("site timeout should override the default: %q (%s)", out.Error, out.Detail)
	}

	// a fresh connection is dialled for a slow site as well
	chk = NewHTTPChecker(time.Nanosecond, 1)
	out = chk.Probe(context.Background(), target(s.URL, 2*time.Second))
	if !out.Up() {
		t.Fatalf("dial must not be capped by the default timeout: %q (%s)", out.Error, out.Detail)
	}
}

func TestHTTPChecker_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out := NewHTTPChecker(time.Second, 1).Probe(context.Background(), target("http://"+addr, 0))
	if out.Up() {
		t.Fatalf("want down, got %+v", out)
	}
	if out.Error != ErrConnectionRefused {
		t.Fatalf("want connection_refused, got %q (%s)", out.Error, out.Detail)
	}
}

func TestHTTPChecker_InvalidURL(t *testing.T) {
	out := NewHTTPChecker(time.Second, 1).Probe(context.Background(), target("http://[::1", 0))
	if out.Up() || out.Error != ErrInvalidRequest {
		t.Fatalf("want invalid_request, got %+v", out)
	}
}

func TestIsUpStatus(t *testing.T) {
	cases := []struct {
		code, expected int
		want           bool
	}{
		{200, 0, true},
		{301, 0, true},
		{399, 0, true},
		{400, 0, false},
		{503, 0, false},
		{199, 0, false},
		{418, 418, true},
		{500, 200, false},
	}
	for _, c := range cases {
		if got := IsUpStatus(c.code, c.expected); got != c.want {
			t.Fatalf("IsUpStatus(%d,%d)=%v want %v", c.code, c.expected, got, c.want)
		}
	}
}
