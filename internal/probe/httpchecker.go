package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second
	maxDrainBytes  = 64 << 10
)

var UserAgent = "statusmonitor/dev (uptime monitoring)"

type HTTPChecker struct {
	Client         *http.Client
	DefaultTimeout time.Duration
	UserAgent      string
}

// NewHTTPChecker returns a prober with a pooled transport. Redirects are
// followed by the client; the per-probe deadline comes from the target.
func NewHTTPChecker(defaultTimeout time.Duration, maxConns int) *HTTPChecker {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		// Dial and handshake are bounded by the per-probe deadline only, so a
		// site timeout longer than the default is honoured end to end.
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &HTTPChecker{
		Client:         &http.Client{Transport: otelhttp.NewTransport(transport)},
		DefaultTimeout: defaultTimeout,
		UserAgent:      UserAgent,
	}
}

func (h *HTTPChecker) Probe(ctx context.Context, t domain.Target) Result {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = h.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := Result{Outcome: OutcomeDown, StartedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		res.Elapsed = time.Since(start)
		res.Error = ErrInvalidRequest
		res.Detail = err.Error()
		return res
	}
	req.Header.Set("User-Agent", h.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := h.Client.Do(req)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Error, res.Detail = Classify(ctx, err)
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	latency := res.Elapsed
	code := resp.StatusCode
	res.ResponseTime = &latency
	res.StatusCode = &code
	res.Detail = resp.Status
	if IsUpStatus(code, t.ExpectedStatus) {
		res.Outcome = OutcomeUp
	} else {
		res.Error = ErrHTTPStatus
	}
	return res
}
