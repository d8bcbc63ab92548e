package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/httpapi"
)

type LoggerOptions struct {
	RequestIDHeader string
	RealIPHeader    string
	Repanic         bool
}

func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		RequestIDHeader: "X-Request-Id",
		RealIPHeader:    "X-Real-Ip",
	}
}

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Status returns the HTTP status code
func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

func getRealIP(r *http.Request, header string) string {
	ip, _ := realIP(r, header)
	return ip
}

func getRequestID(r *http.Request, header string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return uuid.New().String()
}

var tracer = otel.Tracer("orgchart-middleware")

// WithLogger opens a span per request, puts a request-scoped logger and the
// request id into the context and turns handler panics into a JSON 500.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	if opts.RequestIDHeader == "" {
		opts.RequestIDHeader = DefaultLoggerOptions().RequestIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := getRequestID(r, opts.RequestIDHeader)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"path":       r.URL.Path,
				"method":     r.Method,
			})
			fieldsLogger.WithFields(logrus.Fields{
				"host":       r.Host,
				"ip":         getRealIP(r, opts.RealIPHeader),
				"user-agent": r.UserAgent(),
			}).Debug("request started")

			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(
				ctx,
				"http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
					attribute.String("http.request_id", requestID),
				),
			)
			defer span.End()

			if spanContext := span.SpanContext(); spanContext.HasTraceID() {
				w.Header().Set("X-Trace-Id", spanContext.TraceID().String())
				fieldsLogger = fieldsLogger.WithField("trace-id", spanContext.TraceID().String())
			}
			ctx = composables.WithLogger(ctx, fieldsLogger)
			ctx = composables.WithRequestID(ctx, requestID)

			w.Header().Set(opts.RequestIDHeader, requestID)
			wrapped := &responseCaptureWriter{ResponseWriter: w}

			defer func() {
				if recovered := recover(); recovered != nil {
					fieldsLogger.WithFields(logrus.Fields{
						"panic":    recovered,
						"stack":    string(debug.Stack()),
						"duration": time.Since(start),
					}).Error("panic recovered in request handler")
					if !wrapped.statusWritten {
						_ = httpapi.WriteError(wrapped, http.StatusInternalServerError, requestID, "INTERNAL_SERVER_ERROR", "internal server error")
					}
					if opts.Repanic {
						panic(recovered)
					}
				}
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			statusCode := wrapped.Status()
			duration := time.Since(start)
			fieldsLogger.WithFields(logrus.Fields{
				"duration":     duration,
				"status-code":  statusCode,
				"status-class": statusCode / 100,
			}).Info("request completed")
			span.SetAttributes(
				attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
				attribute.Int("http.status_code", statusCode),
			)
		})
	}
}
