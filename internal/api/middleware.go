package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const eventsPath = "/api/v1/events"

// requestLogger logs one line per request once it finishes. Tab routes carry
// their tab_id; the event stream only logs at debug since its requests last
// as long as the client stays subscribed.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				attrs = append(attrs, "route", pattern)
			}
			if tabID := rctx.URLParam("tab_id"); tabID != "" {
				attrs = append(attrs, "tab_id", tabID)
			}
		}

		switch {
		case r.URL.Path == eventsPath:
			slog.Debug("event stream closed", attrs...)
		case ww.Status() >= http.StatusInternalServerError:
			slog.Warn("http request failed", attrs...)
		default:
			slog.Info("http request", attrs...)
		}
	})
}
