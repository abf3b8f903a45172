package bus

import "context"

// Transport accepts outbound messages for asynchronous delivery. The outcome
// is reported only through the callback; Send never waits for the platform.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage, cb Callback)
}

// Sender performs one synchronous delivery for a single bot.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (Response, error)
}

type SenderFunc func(ctx context.Context, msg OutboundMessage) (Response, error)

func (f SenderFunc) Send(ctx context.Context, msg OutboundMessage) (Response, error) {
	return f(ctx, msg)
}
