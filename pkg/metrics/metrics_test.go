package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zhaopengme/telemvc/pkg/update"
)

func TestRecorder_NoopMeter(t *testing.T) {
	r, err := New(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	r.UpdateReceived(update.TypeMessage)
	r.NoHandler(update.TypePoll)
	r.DispatchFailed("handler")
	r.SendSucceeded()
	r.SendFailed()
}

func TestRecorder_CountsThroughProvider(t *testing.T) {
	p := NewProvider(nil)
	r, err := New(p.Meter())
	require.NoError(t, err)

	r.UpdateReceived(update.TypeMessage)
	r.UpdateReceived(update.TypeCallbackQuery)
	r.NoHandler(update.TypePoll)
	r.DispatchFailed("handler")
	r.DispatchFailed("argument")
	r.SendSucceeded()
	r.SendFailed()

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"telemvc.updates":           2,
		"telemvc.updates.unhandled": 1,
		"telemvc.dispatch.failures": 2,
		"telemvc.sends":             1,
		"telemvc.sends.failures":    1,
	}, snap)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestRecorder_UnhandledCarriesUpdateType(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	r, err := New(mp.Meter("test"))
	require.NoError(t, err)
	r.NoHandler(update.TypePoll)
	r.NoHandler(update.TypePoll)
	r.NoHandler(update.TypeMessage)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byType := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "telemvc.updates.unhandled" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("update.type"))
				byType[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		update.TypePoll.String():    2,
		update.TypeMessage.String(): 1,
	}, byType)
}
