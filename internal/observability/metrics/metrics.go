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
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	billingRuns    metric.Int64Counter
	runDuration    metric.Float64Histogram
	ledgerInserts  metric.Int64Counter
	chargeOutcomes metric.Int64Counter
	chargeRetries  metric.Int64Counter
	notifyFailures metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tollgate"
	}
	meter := provider.Meter(name)

	billingRuns, err := meter.Int64Counter("tollgate_billing_runs_total")
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("tollgate_billing_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	ledgerInserts, err := meter.Int64Counter("tollgate_ledger_inserts_total")
	if err != nil {
		return nil, err
	}
	chargeOutcomes, err := meter.Int64Counter("tollgate_charge_outcomes_total")
	if err != nil {
		return nil, err
	}
	chargeRetries, err := meter.Int64Counter("tollgate_charge_retries_total")
	if err != nil {
		return nil, err
	}
	notifyFailures, err := meter.Int64Counter("tollgate_notify_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billingRuns:    billingRuns,
		runDuration:    runDuration,
		ledgerInserts:  ledgerInserts,
		chargeOutcomes: chargeOutcomes,
		chargeRetries:  chargeRetries,
		notifyFailures: notifyFailures,
	}, nil
}

// RecordRunCompleted increments run counts and observes the run duration.
func (m *Metrics) RecordRunCompleted(ctx context.Context, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("state", strings.TrimSpace(state)))
	m.billingRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordLedgerInserts increments ledger insert counts by write phase.
func (m *Metrics) RecordLedgerInserts(ctx context.Context, phase string, count int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("phase", strings.TrimSpace(phase)))
	m.ledgerInserts.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordChargeOutcome increments outcome counts by terminal status.
func (m *Metrics) RecordChargeOutcome(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.chargeOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordChargeRetry increments charge retry counts.
func (m *Metrics) RecordChargeRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.chargeRetries.Add(ctx, 1)
}

// RecordNotifyFailure increments notification delivery failure counts.
func (m *Metrics) RecordNotifyFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("channel", strings.TrimSpace(channel)))
	m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"state":   {},
	"phase":   {},
	"status":  {},
	"channel": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
