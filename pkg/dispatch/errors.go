package dispatch

import (
	"errors"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/session"
)

var (
	ErrUnresolvableArgument    = errors.New("unresolvable handler argument")
	ErrHandlerInvocationFailed = errors.New("handler invocation failed")
	ErrSessionCreationFailed   = session.ErrCreationFailed
	ErrUnsupportedReturnValue  = errors.New("unsupported handler return value")
	ErrNoReplyTarget           = errors.New("event has no chat or user to reply to")
	ErrTransportSendFailed     = bus.ErrTransportSendFailed
	ErrPoolClosed              = errors.New("worker pool closed")
)

// failureReason names the pipeline stage an error came from, for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSessionCreationFailed):
		return "session"
	case errors.Is(err, ErrUnresolvableArgument):
		return "argument"
	case errors.Is(err, ErrHandlerInvocationFailed):
		return "handler"
	case errors.Is(err, ErrUnsupportedReturnValue), errors.Is(err, ErrNoReplyTarget):
		return "return_value"
	}
	return "other"
}
