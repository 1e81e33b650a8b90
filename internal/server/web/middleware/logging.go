package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// accessLogEntry is filled in by inner middleware while the request runs.
type accessLogEntry struct {
	identity  string
	operation string
}

// HTTPLoggerWithLevel logs HTTP requests based on configured level.
// "silent" logs nothing, "error" only 5xx, "warn" 4xx and 5xx, "info" (default) everything.
func HTTPLoggerWithLevel(next http.Handler, logLevel string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logLevel == "silent" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		entry := &accessLogEntry{}
		ctx := context.WithValue(r.Context(), accessLogContextKey, entry)

		next.ServeHTTP(rw, r.WithContext(ctx))

		logEvent := eventForStatus(rw.statusCode, logLevel)
		if logEvent == nil {
			return
		}

		duration := time.Since(start)
		logEvent = logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Int("status", rw.statusCode).
			Int64("bytes", rw.written).
			Dur("duration", duration)

		if id := rw.Header().Get(RequestIDHeader); id != "" {
			logEvent = logEvent.Str("request_id", id)
		}
		// Query strings are logged for authenticated calls only; public
		// webhook senders often put secrets there.
		if entry.identity != "" {
			logEvent = logEvent.
				Str("identity", entry.identity).
				Str("operation", entry.operation)
			if r.URL.RawQuery != "" {
				logEvent = logEvent.Str("query", r.URL.RawQuery)
			}
		}

		logEvent.Msg("HTTP request")
	})
}

// eventForStatus picks the log level for a response, or nil to skip it.
func eventForStatus(status int, logLevel string) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.ErrorEvent()
	case status >= 400:
		if logLevel == "error" {
			return nil
		}
		return logger.WarnEvent()
	default:
		if logLevel == "error" || logLevel == "warn" {
			return nil
		}
		return logger.InfoEvent()
	}
}
