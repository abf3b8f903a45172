package metrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zhaopengme/telemvc/pkg/update"
)

const instrumentationName = "github.com/zhaopengme/telemvc"

// Recorder counts dispatch pipeline events with OpenTelemetry instruments.
type Recorder struct {
	updates      metric.Int64Counter
	noHandler    metric.Int64Counter
	failures     metric.Int64Counter
	sends        metric.Int64Counter
	sendFailures metric.Int64Counter
}

// New builds a Recorder from the global meter provider when meter is nil.
func New(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	r := &Recorder{
		updates:      counter("telemvc.updates", "Inbound updates accepted for dispatch"),
		noHandler:    counter("telemvc.updates.unhandled", "Updates dropped because no handler matched"),
		failures:     counter("telemvc.dispatch.failures", "Dispatches aborted by an error"),
		sends:        counter("telemvc.sends", "Outbound messages delivered"),
		sendFailures: counter("telemvc.sends.failures", "Outbound messages the transport failed to deliver"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func typeAttr(t update.Type) metric.AddOption {
	return metric.WithAttributes(attribute.String("update.type", t.String()))
}

func (r *Recorder) UpdateReceived(t update.Type) {
	r.updates.Add(context.Background(), 1, typeAttr(t))
}

func (r *Recorder) NoHandler(t update.Type) {
	r.noHandler.Add(context.Background(), 1, typeAttr(t))
}

func (r *Recorder) DispatchFailed(reason string) {
	r.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) SendSucceeded() {
	r.sends.Add(context.Background(), 1)
}

func (r *Recorder) SendFailed() {
	r.sendFailures.Add(context.Background(), 1)
}
