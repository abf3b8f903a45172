package metrics

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/zhaopengme/telemvc/pkg/logger"
)

// Provider is the process MeterProvider. Counters are read back through a
// manual reader and reported to the log.
type Provider struct {
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// Setup builds the provider and registers it as the global MeterProvider.
// The caller must Shutdown it on exit.
func Setup(ctx context.Context, serviceName string) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	p := NewProvider(res)
	otel.SetMeterProvider(p.mp)
	return p, nil
}

// NewProvider builds a provider without touching the global one.
func NewProvider(res *resource.Resource) *Provider {
	reader := sdkmetric.NewManualReader()
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	return &Provider{
		mp:     sdkmetric.NewMeterProvider(opts...),
		reader: reader,
	}
}

func (p *Provider) Meter() metric.Meter {
	return p.mp.Meter(instrumentationName)
}

// Snapshot returns the cumulative value of every integer counter, summed
// over its attribute sets.
func (p *Provider) Snapshot(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out, nil
}

func (p *Provider) report(ctx context.Context, msg string) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		logger.WarnCF("metrics", "Metrics collection failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(snap) == 0 {
		return
	}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make(map[string]interface{}, len(snap))
	for _, name := range names {
		fields[name] = snap[name]
	}
	logger.InfoCF("metrics", msg, fields)
}

// RunReporter logs a snapshot every interval until ctx is done. A
// non-positive interval disables periodic reports.
func (p *Provider) RunReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report(ctx, "Metrics snapshot")
		}
	}
}

// Shutdown logs the final counter values and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.report(ctx, "Final metrics")
	err := p.mp.Shutdown(ctx)
	if errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return nil
	}
	return err
}
