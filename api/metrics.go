package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestSpanName  = "http.request"
	requestLogMsg    = "request.metrics"
	metricsKey       = "request_metrics"
	tracerName       = "company-tasks-api/api"
	stageAuth        = "auth"
	stageValidation  = "validation"
	stageRemote      = "remote"
	stageRateLimit   = "rate_limit"
	stagePathGuard   = "path_guard"
	stageContentType = "content_type"
)

type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	start      time.Time
	route      string
	method     string
	remoteTime time.Duration
	items      int
	errorStage string
}

func newRequestMetrics(logger *log.Logger, span trace.Span, route, method string) *requestMetrics {
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
		method: method,
		items:  -1,
	}
}

func (m *requestMetrics) ObserveRemote(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.remoteTime += d
}

func (m *requestMetrics) SetItems(n int) {
	if m == nil || n < 0 {
		return
	}
	m.items = n
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" || m.errorStage != "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) Log(status int, userID string, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))

	fields := log.Fields{
		"route":           m.route,
		"method":          m.method,
		"status":          status,
		"total_ms":        total,
		"user_id_present": userID != "",
	}
	if m.remoteTime > 0 {
		fields["remote_ms"] = durationToMillis(m.remoteTime)
	}
	if m.items >= 0 {
		fields["items_returned"] = m.items
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.span != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.route", m.route),
			attribute.String("http.method", m.method),
			attribute.Int("http.status_code", status),
			attribute.Float64("request.total_ms", total),
		}
		if m.errorStage != "" {
			attrs = append(attrs, attribute.String("request.error_stage", m.errorStage))
		}
		m.span.SetAttributes(attrs...)
		if status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(fields)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error(requestLogMsg)
	case status >= http.StatusBadRequest:
		entry.Warn(requestLogMsg)
	default:
		entry.Info(requestLogMsg)
	}
}

// RequestMetrics wraps each request in a span and writes one structured
// request.metrics line once the response status is known.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			ctx, span := tracer.Start(req.Context(), requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			m := newRequestMetrics(logger, span, route, req.Method)
			c.Set(metricsKey, m)

			err := next(c)
			if err != nil {
				m.SetErrorStage(stageForError(err))
				c.Error(err)
			}
			m.Log(c.Response().Status, userID(c), err)
			return nil
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}

func stageForError(err error) string {
	he, ok := err.(*echo.HTTPError)
	if !ok {
		return stageRemote
	}
	switch he.Code {
	case http.StatusUnauthorized:
		return stageAuth
	case http.StatusUnprocessableEntity:
		if he.Message == "Content-Type must be application/json" {
			return stageContentType
		}
		return stageValidation
	case http.StatusTooManyRequests:
		return stageRateLimit
	case http.StatusNotFound:
		return stagePathGuard
	default:
		return stageRemote
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
