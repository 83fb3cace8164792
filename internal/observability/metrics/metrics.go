// Package metrics exposes OpenTelemetry instruments for the ledger core.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	appconfig "github.com/smallbiznis/taxledger/internal/config"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerEvents     metric.Int64Counter
	supersededEvents metric.Int64Counter
	reversals        metric.Int64Counter
	reversalRetries  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter protocol %q", protocol)
	}
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "taxledger"
	}
	meter := provider.Meter(name)

	ledgerEvents, err := meter.Int64Counter("taxledger_events_total")
	if err != nil {
		return nil, err
	}
	supersededEvents, err := meter.Int64Counter("taxledger_events_superseded_total")
	if err != nil {
		return nil, err
	}
	reversals, err := meter.Int64Counter("taxledger_payment_reversals_total")
	if err != nil {
		return nil, err
	}
	reversalRetries, err := meter.Int64Counter("taxledger_payment_reversal_retries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ledgerEvents:     ledgerEvents,
		supersededEvents: supersededEvents,
		reversals:        reversals,
		reversalRetries:  reversalRetries,
	}, nil
}

// RecordLedgerEvent counts a written transaction event by kind.
func (m *Metrics) RecordLedgerEvent(ctx context.Context, kind int) {
	if m == nil {
		return
	}
	m.ledgerEvents.Add(ctx, 1, metric.WithAttributes(attribute.Int("event_id", kind)))
}

// RecordSupersededEvents counts rows removed by the supersede rule.
func (m *Metrics) RecordSupersededEvents(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.supersededEvents.Add(ctx, n)
}

// RecordReversal counts a completed payment reversal.
func (m *Metrics) RecordReversal(ctx context.Context) {
	if m == nil {
		return
	}
	m.reversals.Add(ctx, 1)
}

// RecordReversalRetry counts a lock-contention retry.
func (m *Metrics) RecordReversalRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.reversalRetries.Add(ctx, 1)
}

// ProvideConfig maps application configuration onto the metrics config.
func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.MetricsEndpoint,
		ExporterProtocol: cfg.MetricsExporter,
		ServiceName:      cfg.AppName,
	}
}

// Module wires the provider and instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(ProvideConfig),
	fx.Provide(NewProvider),
	fx.Provide(New),
)
