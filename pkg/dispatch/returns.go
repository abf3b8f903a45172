package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/mymmrac/telego"

	"github.com/zhaopengme/telemvc/pkg/bus"
)

// ReturnValueHandler turns a non-nil handler result into an outbound
// message. A nil message with a nil error means nothing is sent.
type ReturnValueHandler interface {
	SupportsReturnType(t reflect.Type) bool
	HandleReturnValue(ctx context.Context, req *Request, value any) (*bus.OutboundMessage, error)
}

// ReturnValueHandlers is an ordered chain matched on the dynamic type of
// the value, first claim wins.
type ReturnValueHandlers struct {
	handlers []ReturnValueHandler
	cache    sync.Map // reflect.Type -> ReturnValueHandler
}

func NewReturnValueHandlers(handlers ...ReturnValueHandler) *ReturnValueHandlers {
	return &ReturnValueHandlers{handlers: handlers}
}

// Add appends handlers after the existing ones.
func (c *ReturnValueHandlers) Add(handlers ...ReturnValueHandler) *ReturnValueHandlers {
	return NewReturnValueHandlers(append(append([]ReturnValueHandler(nil), c.handlers...), handlers...)...)
}

func (c *ReturnValueHandlers) find(t reflect.Type) ReturnValueHandler {
	if h, ok := c.cache.Load(t); ok {
		return h.(ReturnValueHandler)
	}
	for _, h := range c.handlers {
		if h.SupportsReturnType(t) {
			c.cache.Store(t, h)
			return h
		}
	}
	return nil
}

func (c *ReturnValueHandlers) SupportsReturnType(t reflect.Type) bool {
	return c.find(t) != nil
}

func (c *ReturnValueHandlers) HandleReturnValue(ctx context.Context, req *Request, value any) (*bus.OutboundMessage, error) {
	if value == nil {
		return nil, nil
	}
	t := reflect.TypeOf(value)
	h := c.find(t)
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedReturnValue, t)
	}
	return h.HandleReturnValue(ctx, req, value)
}

type typedReturnHandler[T any] struct {
	typ reflect.Type
	fn  func(ctx context.Context, req *Request, v T) (*bus.OutboundMessage, error)
}

// ReturnHandlerFor handles results whose dynamic type is exactly T.
func ReturnHandlerFor[T any](fn func(ctx context.Context, req *Request, v T) (*bus.OutboundMessage, error)) ReturnValueHandler {
	return &typedReturnHandler[T]{typ: reflect.TypeFor[T](), fn: fn}
}

func (h *typedReturnHandler[T]) SupportsReturnType(t reflect.Type) bool { return t == h.typ }

func (h *typedReturnHandler[T]) HandleReturnValue(ctx context.Context, req *Request, value any) (*bus.OutboundMessage, error) {
	v, ok := value.(T)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedReturnValue, value)
	}
	return h.fn(ctx, req, v)
}

// DefaultReturnValueHandlers passes prebuilt outbound messages through,
// replies to the event's chat with a returned string, and forwards a
// returned *telego.SendMessageParams unchanged.
func DefaultReturnValueHandlers() *ReturnValueHandlers {
	return NewReturnValueHandlers(
		ReturnHandlerFor(func(_ context.Context, req *Request, m *bus.OutboundMessage) (*bus.OutboundMessage, error) {
			out := *m
			if err := addressed(req, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}),
		ReturnHandlerFor(func(_ context.Context, req *Request, m bus.OutboundMessage) (*bus.OutboundMessage, error) {
			if err := addressed(req, &m); err != nil {
				return nil, err
			}
			return &m, nil
		}),
		ReturnHandlerFor(func(_ context.Context, req *Request, text string) (*bus.OutboundMessage, error) {
			if text == "" {
				return nil, nil
			}
			chatID, err := replyTarget(req)
			if err != nil {
				return nil, err
			}
			return &bus.OutboundMessage{Bot: req.Event.Bot(), ChatID: chatID, Text: text}, nil
		}),
		ReturnHandlerFor(func(_ context.Context, req *Request, orig *telego.SendMessageParams) (*bus.OutboundMessage, error) {
			// handlers may reuse their params; only the copy is addressed
			p := *orig
			out := &bus.OutboundMessage{Bot: req.Event.Bot(), Text: p.Text, Request: &p}
			if p.ChatID.ID != 0 {
				out.ChatID = p.ChatID.ID
			} else if p.ChatID.Username == "" {
				chatID, err := replyTarget(req)
				if err != nil {
					return nil, err
				}
				p.ChatID = telego.ChatID{ID: chatID}
				out.ChatID = chatID
			}
			return out, nil
		}),
	)
}

// addressed fills the bot and, when unset, the chat of a handler-built
// message from the triggering event. A message with neither a chat nor
// its own send request has nowhere to go.
func addressed(req *Request, m *bus.OutboundMessage) error {
	if m.Bot == "" {
		m.Bot = req.Event.Bot()
	}
	if m.ChatID != 0 {
		return nil
	}
	id, err := replyTarget(req)
	if err == nil {
		m.ChatID = id
		return nil
	}
	if m.Request == nil {
		return err
	}
	return nil
}

// replyTarget is the event's chat, or the user's private chat when the
// event carries no chat.
func replyTarget(req *Request) (int64, error) {
	if id, ok := req.Event.ChatID(); ok {
		return id, nil
	}
	if id, ok := req.Event.UserID(); ok {
		return id, nil
	}
	return 0, ErrNoReplyTarget
}
