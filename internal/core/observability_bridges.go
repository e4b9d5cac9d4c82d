package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	_ Logger          = (*ZapLogger)(nil)
	_ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
	_ Tracer          = (*OTelTracer)(nil)
)

// ZapLogger adapts a zap logger to the Logger seam. Service log arguments
// are alternating key/value pairs, which map directly onto zap's sugared
// calls.
type ZapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger wraps logger for use as the service Logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{l: logger.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }

// PrometheusMetricsRecorder exports operation outcomes as a counter vector
// and a latency histogram vector.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockcore",
		Subsystem: "service",
		Name:      "operations_total",
		Help:      "Service operations by operation and status.",
	}, []string{"operation", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stockcore",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Service operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	for _, collector := range []prometheus.Collector{operations, durations} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return &PrometheusMetricsRecorder{operations: operations, durations: durations}, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// OTelTracer bridges the Tracer seam to an OpenTelemetry tracer so service
// operations show up as spans in a distributed trace.
type OTelTracer struct {
	tracer oteltrace.Tracer
}

// NewOTelTracer wraps an OpenTelemetry tracer.
func NewOTelTracer(tracer oteltrace.Tracer) *OTelTracer {
	return &OTelTracer{tracer: tracer}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, operation)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
