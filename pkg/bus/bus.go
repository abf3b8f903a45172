package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zhaopengme/telemvc/pkg/logger"
)

var (
	// ErrTransportSendFailed wraps every delivery failure reported through a
	// Callback.
	ErrTransportSendFailed = errors.New("transport send failed")
	ErrBusClosed           = errors.New("message bus closed")
	ErrNoSender            = errors.New("no sender registered for bot")
)

// MessageBus queues outbound messages and delivers them from Run, routing
// each one to the sender registered for its bot.
type MessageBus struct {
	outbound  chan envelope
	senders   map[string]Sender
	fallback  Sender
	quit      chan struct{}
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

func NewMessageBus(queueSize int) *MessageBus {
	if queueSize < 0 {
		queueSize = 0
	}
	return &MessageBus{
		outbound: make(chan envelope, queueSize),
		senders:  make(map[string]Sender),
		quit:     make(chan struct{}),
	}
}

func (mb *MessageBus) RegisterSender(bot string, sender Sender) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.senders[bot] = sender
}

// SetFallbackSender handles messages whose bot has no registered sender.
func (mb *MessageBus) SetFallbackSender(sender Sender) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.fallback = sender
}

func (mb *MessageBus) GetSender(bot string) (Sender, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if s, ok := mb.senders[bot]; ok {
		return s, true
	}
	if mb.fallback != nil {
		return mb.fallback, true
	}
	return nil, false
}

// Send enqueues msg. It blocks only while the queue is full; hand-off
// failures are reported through cb like delivery failures.
func (mb *MessageBus) Send(ctx context.Context, msg OutboundMessage, cb Callback) {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		cb.failure(msg, fmt.Errorf("%w: %w", ErrTransportSendFailed, ErrBusClosed))
		return
	}

	var err error
	select {
	case mb.outbound <- envelope{msg: msg, cb: cb}:
	case <-mb.quit:
		err = ErrBusClosed
	case <-ctx.Done():
		err = ctx.Err()
	}
	mb.mu.RUnlock()

	if err != nil {
		cb.failure(msg, fmt.Errorf("%w: %w", ErrTransportSendFailed, err))
	}
}

// Run delivers queued messages until ctx is done or the bus is closed. On
// close, messages already queued are still delivered.
func (mb *MessageBus) Run(ctx context.Context) {
	for {
		select {
		case env := <-mb.outbound:
			mb.deliver(ctx, env)
		case <-mb.quit:
			// wait out in-flight Send calls so nothing is queued after the drain
			mb.mu.Lock()
			mb.closed = true
			mb.mu.Unlock()
			for {
				select {
				case env := <-mb.outbound:
					mb.deliver(ctx, env)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (mb *MessageBus) deliver(ctx context.Context, env envelope) {
	sender, ok := mb.GetSender(env.msg.Bot)
	if !ok {
		env.cb.failure(env.msg, fmt.Errorf("%w: %w", ErrTransportSendFailed, ErrNoSender))
		return
	}

	resp, err := safeSend(ctx, sender, env.msg)
	if err != nil {
		logger.ErrorCF("bus", "Outbound delivery failed", map[string]interface{}{
			"chat_id": env.msg.ChatID,
			"error":   err.Error(),
		})
		env.cb.failure(env.msg, fmt.Errorf("%w: %w", ErrTransportSendFailed, err))
		return
	}
	env.cb.success(env.msg, resp)
}

func safeSend(ctx context.Context, s Sender, msg OutboundMessage) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return s.Send(ctx, msg)
}

// Close stops accepting messages. Run drains what is already queued.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() { close(mb.quit) })
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.closed = true
}
