package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/logger"
	"github.com/zhaopengme/telemvc/pkg/routing"
	"github.com/zhaopengme/telemvc/pkg/session"
	"github.com/zhaopengme/telemvc/pkg/update"
)

// SessionFactory builds the state for a new session generation.
type SessionFactory func(key update.SessionKey) (*session.Session, error)

// Dispatcher runs the pipeline for each event: session, handler lookup,
// argument resolution, invocation, return value handling and the
// asynchronous hand-off to the transport.
type Dispatcher struct {
	registry *routing.Registry
	sessions *session.Store[*session.Session]
	pool     *Pool

	factory   SessionFactory
	args      *ArgumentResolvers
	returns   *ReturnValueHandlers
	metrics   Metrics
	responses bus.Callback
	onOutcome func(*Request)
}

type Option func(*Dispatcher)

func WithArgumentResolvers(r *ArgumentResolvers) Option {
	return func(d *Dispatcher) { d.args = r }
}

func WithReturnValueHandlers(h *ReturnValueHandlers) Option {
	return func(d *Dispatcher) { d.returns = h }
}

func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithResponseCallback observes every transport result, after the
// dispatcher's own bookkeeping.
func WithResponseCallback(cb bus.Callback) Option {
	return func(d *Dispatcher) { d.responses = cb }
}

// WithOutcomeHook is called once per dispatch when its synchronous part
// is finished.
func WithOutcomeHook(fn func(*Request)) Option {
	return func(d *Dispatcher) { d.onOutcome = fn }
}

func WithSessionFactory(f SessionFactory) Option {
	return func(d *Dispatcher) { d.factory = f }
}

func New(registry *routing.Registry, sessions *session.Store[*session.Session], pool *Pool, opts ...Option) (*Dispatcher, error) {
	if registry == nil || sessions == nil || pool == nil {
		return nil, errors.New("dispatcher needs a registry, a session store and a pool")
	}
	d := &Dispatcher{
		registry: registry,
		sessions: sessions,
		pool:     pool,
		factory: func(key update.SessionKey) (*session.Session, error) {
			return session.NewSession(key), nil
		},
		args:    DefaultArgumentResolvers(),
		returns: DefaultReturnValueHandlers(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Execute submits the event to the worker pool and returns once a worker
// has taken it. It blocks while every worker is busy. The dispatch itself
// is not cancelled when ctx ends after hand-off.
func (d *Dispatcher) Execute(ctx context.Context, event *update.Event, transport bus.Transport) error {
	if event == nil {
		return errors.New("event is nil")
	}
	detached := context.WithoutCancel(ctx)
	err := d.pool.Submit(ctx, func() {
		d.Process(detached, event, transport)
	})
	if err != nil {
		return fmt.Errorf("submit update %d: %w", event.ID(), err)
	}
	d.metrics.UpdateReceived(event.Type())
	return nil
}

// Process runs the pipeline on the calling goroutine and returns the
// finished request. Transport delivery is only started, not awaited.
func (d *Dispatcher) Process(ctx context.Context, event *update.Event, transport bus.Transport) *Request {
	req := newRequest(event)
	req.SessionKey = event.SessionKey()

	state, err := d.sessions.GetOrCreate(req.SessionKey, func() (*session.Session, error) {
		return d.factory(req.SessionKey)
	})
	if err != nil {
		req.fail(err)
		d.finish(req)
		return req
	}

	d.invoke(ctx, req, state)

	if req.Outbound != nil && req.Err == nil {
		if transport == nil {
			req.fail(fmt.Errorf("%w: no transport for outbound message", ErrTransportSendFailed))
		} else {
			req.Outcome = OutcomeResponded
			transport.Send(ctx, *req.Outbound, d.callback(req))
		}
	}
	d.finish(req)
	return req
}

// invoke covers the span during which the session is bound to the
// context. The binding is released on every return path.
func (d *Dispatcher) invoke(ctx context.Context, req *Request, state *session.Session) {
	bctx, release := session.Bind(ctx, req.SessionKey, state)
	defer release()

	match, ok := d.registry.Lookup(req.Event)
	if !ok {
		req.Outcome = OutcomeNoHandler
		d.metrics.NoHandler(req.Event.Type())
		return
	}
	req.Handler = match.Descriptor
	req.Vars = match.Vars
	req.Ambiguous = match.Ambiguous
	if match.Ambiguous {
		logger.WarnCF("dispatch", "Several handlers ranked equal, using the first registered", map[string]interface{}{
			"dispatch_id": req.ID,
			"handler":     req.handlerName(),
			"type":        req.Event.Type().String(),
		})
	}

	args, err := d.args.resolveAll(bctx, req, match.Descriptor.Method.Params())
	if err != nil {
		req.fail(err)
		return
	}
	req.Args = args

	result, err := call(match.Descriptor.Method, args)
	if err != nil {
		req.fail(err)
		return
	}
	req.Result = result

	out, err := d.returns.HandleReturnValue(bctx, req, result)
	if err != nil {
		req.fail(err)
		return
	}
	req.Outbound = out
	req.Outcome = OutcomeNoResponse
}

// call invokes the handler, turning both returned errors and panics into
// ErrHandlerInvocationFailed.
func call(m *routing.Method, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.DebugCF("dispatch", "Handler panic stack", map[string]interface{}{
				"handler": m.Name(),
				"stack":   string(debug.Stack()),
			})
			result = nil
			err = fmt.Errorf("%w: %s panicked: %v", ErrHandlerInvocationFailed, m.Name(), r)
		}
	}()

	result, err = m.Call(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrHandlerInvocationFailed, m.Name(), err)
	}
	return result, nil
}

func (d *Dispatcher) callback(req *Request) bus.Callback {
	id := req.ID
	return bus.Callback{
		OnSuccess: func(msg bus.OutboundMessage, resp bus.Response) {
			d.metrics.SendSucceeded()
			logger.DebugCF("dispatch", "Message delivered", map[string]interface{}{
				"dispatch_id": id,
				"chat_id":     msg.ChatID,
				"message_id":  resp.MessageID,
			})
			if d.responses.OnSuccess != nil {
				d.responses.OnSuccess(msg, resp)
			}
		},
		OnFailure: func(msg bus.OutboundMessage, err error) {
			if !errors.Is(err, ErrTransportSendFailed) {
				err = fmt.Errorf("%w: %w", ErrTransportSendFailed, err)
			}
			d.metrics.SendFailed()
			logger.ErrorCF("dispatch", "Message delivery failed", map[string]interface{}{
				"dispatch_id": id,
				"chat_id":     msg.ChatID,
				"error":       err.Error(),
			})
			if d.responses.OnFailure != nil {
				d.responses.OnFailure(msg, err)
			}
		},
	}
}

func (d *Dispatcher) finish(req *Request) {
	req.Duration = time.Since(req.Started)

	fields := map[string]interface{}{
		"dispatch_id": req.ID,
		"update_id":   req.Event.ID(),
		"type":        req.Event.Type().String(),
		"session":     string(req.SessionKey),
		"outcome":     req.Outcome.String(),
		"duration_ms": req.Duration.Milliseconds(),
	}
	if name := req.handlerName(); name != "" {
		fields["handler"] = name
	}

	switch req.Outcome {
	case OutcomeFailed:
		fields["error"] = req.Err.Error()
		d.metrics.DispatchFailed(failureReason(req.Err))
		logger.ErrorCF("dispatch", "Dispatch failed", fields)
	case OutcomeNoHandler:
		logger.DebugCF("dispatch", "No handler matched", fields)
	default:
		logger.DebugCF("dispatch", "Dispatch finished", fields)
	}

	if d.onOutcome != nil {
		d.onOutcome(req)
	}
}
