package httpapi

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/statusmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/statusmonitor/internal/query"
	"github.com/hamed0406/statusmonitor/internal/repo"
)

//go:embed static
var staticFS embed.FS

const defaultPushInterval = 5 * time.Second

type Options struct {
	AppName        string
	Version        string
	CheckInterval  time.Duration
	AllowedOrigins []string
	// PushInterval is how often the websocket feed sends a fresh snapshot.
	PushInterval time.Duration
}

type Server struct {
	Logger *zap.Logger
	Query  *query.Service
	opts   Options
	now    func() time.Time
}

func NewServer(l *zap.Logger, q *query.Service, opts Options) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = defaultPushInterval
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		Logger: l,
		Query:  q,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.AccessLog(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(apimw.SecurityHeaders(s.opts.Version))
	r.Use(s.corsHandler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", s.handleDashboard)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Get("/status", s.handleStatus)
			r.Get("/history/{site}", s.handleHistory)
			r.Get("/incidents", s.handleIncidents)
			r.Get("/health", s.handleHealth)
		})
		// Compression would hide the hijacker the upgrade needs.
		r.Get("/ws", s.handleStatusWS)
	})

	return otelhttp.NewHandler(r, "statusmonitor.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Browsers on other origins are allowed only when ALLOWED_ORIGINS lists
// them; an empty list keeps the API same-origin.
func (s *Server) corsHandler() func(http.Handler) http.Handler {
	if len(s.opts.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

type statusResponse struct {
	query.Snapshot
	App           string  `json:"app"`
	Version       string  `json:"version"`
	CheckInterval float64 `json:"check_interval"`
}

func (s *Server) statusPayload(r *http.Request) (statusResponse, error) {
	snap, err := s.Query.Snapshot(r.Context(), s.now())
	if err != nil {
		return statusResponse{}, err
	}
	return statusResponse{
		Snapshot:      snap,
		App:           s.opts.AppName,
		Version:       s.opts.Version,
		CheckInterval: s.opts.CheckInterval.Seconds(),
	}, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.statusPayload(r)
	if err != nil {
		s.Logger.Error("status_query_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	q, err := parseHistoryQuery(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.Query.History(r.Context(), site, q, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	if err != nil {
		s.Logger.Error("history_query_failed", zap.String("site", site), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type incidentsResponse struct {
	Incidents []query.IncidentView `json:"incidents"`
	Count     int                  `json:"count"`
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	incs, err := s.Query.OpenIncidents(r.Context(), s.now())
	if err != nil {
		s.Logger.Error("incidents_query_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load incidents")
		return
	}
	writeJSON(w, http.StatusOK, incidentsResponse{Incidents: incs, Count: len(incs)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.Query.Health(r.Context(), s.now())
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(staticFS, "static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// parseHistoryQuery reads the optional since (RFC 3339 or a duration such as
// 6h counted back from now) and limit parameters.
func parseHistoryQuery(r *http.Request, now time.Time) (query.HistoryQuery, error) {
	var q query.HistoryQuery
	if raw := r.URL.Query().Get("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Since = ts
		} else if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			q.Since = now.Add(-d)
		} else {
			return q, errors.New("invalid since: use RFC 3339 or a duration like 6h")
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return q, errors.New("invalid limit: must be a positive integer")
		}
		q.Limit = n
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
