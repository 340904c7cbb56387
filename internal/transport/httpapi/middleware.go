package httpapi

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// statusRecorder запоминает код ответа для журнала и метрик.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := h.routeTemplate(r)
		if h.metrics != nil {
			h.metrics.RequestStarted()
		}

		rec := &statusRecorder{ResponseWriter: w}
		started := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(started)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if h.metrics != nil {
			h.metrics.RequestFinished(route, r.Method, rec.status, elapsed)
		}

		entry := h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request served")
			return
		}
		entry.Info("request served")
	})
}
