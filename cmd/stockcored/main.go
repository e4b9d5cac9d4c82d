// Command stockcored serves the inventory store over HTTP. Storage, archive,
// and observability backends are selected through STOCKCORE_* environment
// variables; every exporter is optional and the service runs silent without
// them.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockcore/internal/adapters/api"
	"stockcore/internal/adapters/audit"
	"stockcore/internal/adapters/backup"
	"stockcore/internal/archive"
	"stockcore/internal/core"
)

const (
	serviceName     = "stockcored"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenKeyedStore(ctx)
	if err != nil {
		return fmt.Errorf("open keyed store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close keyed store", zap.Error(err))
		}
	}()

	archiveStore, err := archive.Open(ctx)
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(core.NewZapLogger(logger)),
		core.WithMetricsRecorder(metrics),
	}

	if endpoint := os.Getenv("STOCKCORE_OTLP_ENDPOINT"); endpoint != "" {
		tracer, shutdown, err := setupTracing(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("trace exporter shutdown", zap.Error(err))
			}
		}()
		opts = append(opts, core.WithTracer(core.NewOTelTracer(tracer)))
		logger.Info("otlp trace export enabled", zap.String("endpoint", endpoint))
	}

	if brokers := os.Getenv("STOCKCORE_KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("STOCKCORE_KAFKA_AUDIT_TOPIC")
		if topic == "" {
			topic = "stockcore.audit"
		}
		publisher := audit.NewKafkaPublisher(strings.Split(brokers, ","), topic, core.NewZapLogger(logger))
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("close audit publisher", zap.Error(err))
			}
		}()
		opts = append(opts, core.WithAuditRecorder(publisher))
		logger.Info("kafka audit publishing enabled", zap.String("topic", topic))
	}

	service := core.NewService(store, opts...)

	worker := backup.NewWorker(service, archiveStore, nil)
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			logger.Warn("snapshot worker shutdown", zap.Error(err))
		}
	}()

	handler := &api.Handler{Service: service, Snapshots: worker}
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.Handle("/healthz", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	addr := os.Getenv("STOCKCORE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", addr),
			zap.String("storage_driver", os.Getenv("STOCKCORE_STORAGE_DRIVER")),
			zap.String("archive_driver", string(archiveStore.Driver())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// setupTracing wires an OTLP/HTTP span exporter and returns the tracer the
// service bridges to, plus the provider shutdown.
func setupTracing(ctx context.Context, endpoint string) (oteltrace.Tracer, func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build resource: %w", err)
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Tracer(serviceName), provider.Shutdown, nil
}
