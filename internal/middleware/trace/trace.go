// Package trace assigns request ids and logs every HTTP request.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"findash/internal/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderRequestID is echoed back and accepted from trusted callers.
const HeaderRequestID = "X-Request-ID"

// Metrics counts requests served.
type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
}

type Middleware struct {
	clientIP      func(*http.Request) string
	totalRequests atomic.Int64
	serverErrors  atomic.Int64
}

// NewMiddleware creates the tracer; clientIP may be nil.
func NewMiddleware(clientIP func(*http.Request) string) *Middleware {
	return &Middleware{clientIP: clientIP}
}

// Handler tags the request with an id, installs a request logger and logs
// completion with status and duration.
func (m *Middleware) Handler(logger *log.Logger) func(http.Handler) http.Handler {
	withLogger := log.Middleware(logger, func(r *http.Request) string { return RequestID(r.Context()) })
	return func(next http.Handler) http.Handler {
		inner := withLogger(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
			m.totalRequests.Add(1)

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			inner.ServeHTTP(rw, r)

			if rw.status >= 500 {
				m.serverErrors.Add(1)
			}
			ip := ""
			if m.clientIP != nil {
				ip = m.clientIP(r)
			}
			ctx := log.NewContext(r.Context(), logger.WithComponent(log.ComponentHTTP).With(log.FieldRequestID, id))
			log.LogHTTPEnd(ctx, r, rw.status, time.Since(start).Milliseconds(), ip)
		})
	}
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (m *Middleware) Metrics() Metrics {
	return Metrics{TotalRequests: m.totalRequests.Load(), ServerErrors: m.serverErrors.Load()}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
