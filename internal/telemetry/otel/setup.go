// Package otel wires the OpenTelemetry SDK for the access-control server. The checkpoint
// engine and HTTP middleware record spans and metrics, scan events go out as log records,
// and everything ships over OTLP gRPC.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

const (
	serviceNamespace      = "qr-access-control"
	defaultExportInterval = 10 * time.Second

	// EventIDKey tags every signal with the event the deployment is bound to.
	EventIDKey = attribute.Key("access.event_id")
	// DirectoryDriverKey records which ticket directory backend served the process.
	DirectoryDriverKey = attribute.Key("access.directory_driver")
)

// Settings select the collector and describe this process.
type Settings struct {
	// Endpoint is a URL or host:port. Empty disables export.
	Endpoint string
	// Insecure forces plaintext even for https endpoints.
	Insecure        bool
	ServiceName     string
	EventID         string
	DirectoryDriver string
	// ExportInterval is the metric push period.
	ExportInterval time.Duration
}

// Providers holds the OpenTelemetry providers and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Resource       *resource.Resource
	Shutdown       func(context.Context) error
}

// ParseEndpoint turns an OTLP endpoint (URL or host:port) into a gRPC dial target.
// The path is dropped. insecure is true for non-https schemes or when forced.
func ParseEndpoint(endpoint string, forceInsecure bool) (target string, insecure bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, forceInsecure || u.Scheme != "https", nil
}

// NewResource describes the process: service name and namespace, plus the bound event and
// directory driver when set.
func NewResource(s Settings) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(s.ServiceName),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
	}
	if s.EventID != "" {
		attrs = append(attrs, EventIDKey.String(s.EventID))
	}
	if s.DirectoryDriver != "" {
		attrs = append(attrs, DirectoryDriverKey.String(s.DirectoryDriver))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// NewProviders builds the three providers. Without an endpoint they record in-process only
// and Shutdown is a no-op.
func NewProviders(ctx context.Context, s Settings, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res, err := NewResource(s)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
			MeterProvider:  metric.NewMeterProvider(metric.WithResource(res)),
			LoggerProvider: sdklog.NewLoggerProvider(sdklog.WithResource(res)),
			Resource:       res,
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}
	target, insecure, err := ParseEndpoint(s.Endpoint, s.Insecure)
	if err != nil {
		return nil, err
	}
	interval := s.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}

	p := &Providers{Resource: res}
	var stops []func(context.Context) error
	unwind := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			_ = stops[i](ctx)
		}
	}

	if p.TracerProvider, err = newTracerProvider(ctx, target, insecure, res); err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	stops = append(stops, p.TracerProvider.Shutdown)

	if p.MeterProvider, err = newMeterProvider(ctx, target, insecure, res, interval); err != nil {
		unwind()
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	stops = append(stops, p.MeterProvider.Shutdown)

	if p.LoggerProvider, err = newLoggerProvider(ctx, target, insecure, res); err != nil {
		unwind()
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	stops = append(stops, p.LoggerProvider.Shutdown)

	logger.Info("telemetry: exporting over OTLP", zap.String("target", target), zap.Bool("insecure", insecure))
	p.Shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](ctx); err != nil {
				logger.Warn("telemetry: shutdown", zap.Error(err))
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return p, nil
}

func newTracerProvider(ctx context.Context, target string, insecure bool, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

func newMeterProvider(ctx context.Context, target string, insecure bool, res *resource.Resource, interval time.Duration) (*metric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	reader := metric.NewPeriodicReader(exp, metric.WithInterval(interval))
	return metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader)), nil
}

func newLoggerProvider(ctx context.Context, target string, insecure bool, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)), sdklog.WithResource(res)), nil
}

// SetGlobal sets the global TracerProvider and MeterProvider so checkpoint instrumentation uses them.
// It does not set a global LoggerProvider; pass LoggerProvider to NewEventEmitter.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
