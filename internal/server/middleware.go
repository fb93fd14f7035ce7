package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"flaneur/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// cronHeader is set to cronHeaderValue by the hosting platform's scheduler
// on its own calls.
const (
	cronHeader      = "x-vercel-cron"
	cronHeaderValue = "1"
)

// requireCronAuth admits a request carrying the cron secret as a bearer
// token, the scheduler identity header when trusted, or any request in dev
// mode.
func (s *Server) requireCronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authorizedCron(r) {
			next.ServeHTTP(w, r)
			return
		}
		s.log.Warn("Rejected unauthorized cron call", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *Server) authorizedCron(r *http.Request) bool {
	if s.devMode {
		return true
	}
	if s.config.TrustCronHeader && r.Header.Get(cronHeader) == cronHeaderValue {
		return true
	}
	if s.config.CronSecret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.CronSecret)) == 1
}

// requestLogger logs each request and records its HTTP metrics
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(route, ww.Status(), elapsed.Seconds())
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
