package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/routing"
	"github.com/zhaopengme/telemvc/pkg/update"
)

type Outcome uint8

const (
	OutcomePending Outcome = iota
	// OutcomeNoHandler: nothing matched; the event is dropped.
	OutcomeNoHandler
	// OutcomeNoResponse: the handler ran and returned nothing to send.
	OutcomeNoResponse
	// OutcomeResponded: an outbound message was handed to the transport.
	OutcomeResponded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeNoHandler:
		return "no_handler"
	case OutcomeNoResponse:
		return "no_response"
	case OutcomeResponded:
		return "responded"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Request carries one event through the pipeline. It belongs to a single
// dispatch and is not shared.
type Request struct {
	ID         string
	Event      *update.Event
	SessionKey update.SessionKey

	Handler   *routing.Descriptor
	Vars      routing.PathVars
	Ambiguous bool
	Args      []any

	Result   any
	Outbound *bus.OutboundMessage
	Outcome  Outcome
	Err      error

	Started  time.Time
	Duration time.Duration
}

func newRequest(event *update.Event) *Request {
	return &Request{
		ID:      uuid.NewString(),
		Event:   event,
		Started: time.Now(),
	}
}

func (r *Request) fail(err error) {
	r.Outcome = OutcomeFailed
	r.Err = err
}

func (r *Request) handlerName() string {
	if r.Handler == nil || r.Handler.Method == nil {
		return ""
	}
	return r.Handler.Method.Name()
}
