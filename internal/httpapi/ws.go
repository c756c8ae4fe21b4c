package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 5 * time.Second

// Same-origin pages may always connect; other origins need to be listed in
// AllowedOrigins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(r.Host), u.Host) {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// handleStatusWS pushes the status payload on connect and then every
// PushInterval until the client goes away.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	push := func() bool {
		payload, err := s.statusPayload(r)
		if err != nil {
			s.Logger.Warn("ws_status_failed", zap.Error(err))
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(payload) == nil
	}
	if !push() {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !push() {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
