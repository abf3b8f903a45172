package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/mymmrac/telego"

	"github.com/zhaopengme/telemvc/pkg/routing"
	"github.com/zhaopengme/telemvc/pkg/session"
	"github.com/zhaopengme/telemvc/pkg/update"
)

// ArgumentResolver produces a value for one handler parameter type.
type ArgumentResolver interface {
	SupportsParameter(t reflect.Type) bool
	ResolveArgument(ctx context.Context, req *Request, t reflect.Type) (any, error)
}

// ArgumentResolvers is an ordered chain. For each parameter type the first
// resolver that supports it is used; the choice is cached per type.
type ArgumentResolvers struct {
	resolvers []ArgumentResolver
	cache     sync.Map // reflect.Type -> ArgumentResolver
}

func NewArgumentResolvers(resolvers ...ArgumentResolver) *ArgumentResolvers {
	return &ArgumentResolvers{resolvers: resolvers}
}

// Add appends resolvers after the existing ones.
func (c *ArgumentResolvers) Add(resolvers ...ArgumentResolver) *ArgumentResolvers {
	return NewArgumentResolvers(append(append([]ArgumentResolver(nil), c.resolvers...), resolvers...)...)
}

func (c *ArgumentResolvers) find(t reflect.Type) ArgumentResolver {
	if r, ok := c.cache.Load(t); ok {
		return r.(ArgumentResolver)
	}
	for _, r := range c.resolvers {
		if r.SupportsParameter(t) {
			c.cache.Store(t, r)
			return r
		}
	}
	return nil
}

func (c *ArgumentResolvers) SupportsParameter(t reflect.Type) bool {
	return c.find(t) != nil
}

func (c *ArgumentResolvers) ResolveArgument(ctx context.Context, req *Request, t reflect.Type) (any, error) {
	r := c.find(t)
	if r == nil {
		return nil, fmt.Errorf("%w: no resolver for %s", ErrUnresolvableArgument, t)
	}
	return r.ResolveArgument(ctx, req, t)
}

// resolveAll checks every parameter has a resolver before producing any
// value, so a handler is never half-resolved.
func (c *ArgumentResolvers) resolveAll(ctx context.Context, req *Request, params []reflect.Type) ([]any, error) {
	chosen := make([]ArgumentResolver, len(params))
	for i, t := range params {
		if chosen[i] = c.find(t); chosen[i] == nil {
			return nil, fmt.Errorf("%w: parameter %d of type %s", ErrUnresolvableArgument, i, t)
		}
	}

	args := make([]any, len(params))
	for i, t := range params {
		v, err := chosen[i].ResolveArgument(ctx, req, t)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d of type %s: %w", ErrUnresolvableArgument, i, t, err)
		}
		args[i] = v
	}
	return args, nil
}

type typedResolver[T any] struct {
	typ reflect.Type
	fn  func(ctx context.Context, req *Request) (T, error)
}

// ResolverFor resolves parameters whose declared type is exactly T.
func ResolverFor[T any](fn func(ctx context.Context, req *Request) (T, error)) ArgumentResolver {
	return &typedResolver[T]{typ: reflect.TypeFor[T](), fn: fn}
}

func (r *typedResolver[T]) SupportsParameter(t reflect.Type) bool { return t == r.typ }

func (r *typedResolver[T]) ResolveArgument(ctx context.Context, req *Request, _ reflect.Type) (any, error) {
	return r.fn(ctx, req)
}

// DefaultArgumentResolvers covers the event itself, the dispatch context,
// the bound session, captured path variables and the raw Telegram payloads.
func DefaultArgumentResolvers() *ArgumentResolvers {
	return NewArgumentResolvers(
		ResolverFor(func(_ context.Context, req *Request) (*update.Event, error) {
			return req.Event, nil
		}),
		ResolverFor(func(ctx context.Context, _ *Request) (context.Context, error) {
			return ctx, nil
		}),
		ResolverFor(func(ctx context.Context, _ *Request) (*session.Session, error) {
			s, ok := session.FromContext[*session.Session](ctx)
			if !ok {
				return nil, fmt.Errorf("no session bound to dispatch")
			}
			return s, nil
		}),
		ResolverFor(func(_ context.Context, req *Request) (routing.PathVars, error) {
			if req.Vars == nil {
				return routing.PathVars{}, nil
			}
			return req.Vars, nil
		}),
		ResolverFor(func(_ context.Context, req *Request) (update.SessionKey, error) {
			return req.SessionKey, nil
		}),
		ResolverFor(func(_ context.Context, req *Request) (*telego.Update, error) {
			u, _ := req.Event.Telegram()
			return u, nil
		}),
		ResolverFor(func(_ context.Context, req *Request) (*telego.Message, error) {
			if u, ok := req.Event.Telegram(); ok {
				return u.Message, nil
			}
			return nil, nil
		}),
		ResolverFor(func(_ context.Context, req *Request) (*telego.CallbackQuery, error) {
			if u, ok := req.Event.Telegram(); ok {
				return u.CallbackQuery, nil
			}
			return nil, nil
		}),
		ResolverFor(func(_ context.Context, req *Request) (*telego.InlineQuery, error) {
			if u, ok := req.Event.Telegram(); ok {
				return u.InlineQuery, nil
			}
			return nil, nil
		}),
	)
}
