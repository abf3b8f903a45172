package session

import (
	"context"
	"sync"

	"github.com/zhaopengme/telemvc/pkg/update"
)

type bindingKey struct{}

// binding is the dispatch-scoped association between a context and a
// session. Once released it yields nothing, even to code that kept the
// context around.
type binding struct {
	mu       sync.RWMutex
	key      update.SessionKey
	state    any
	released bool
}

// Bind attaches key and state to ctx. The returned release func must be
// called when the synchronous dispatch span ends; it is idempotent.
func Bind(ctx context.Context, key update.SessionKey, state any) (context.Context, func()) {
	b := &binding{key: key, state: state}
	release := func() {
		b.mu.Lock()
		b.released = true
		b.state = nil
		b.mu.Unlock()
	}
	return context.WithValue(ctx, bindingKey{}, b), release
}

func lookup(ctx context.Context) (*binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return nil, false
	}
	return b, true
}

// KeyFromContext returns the session key bound to ctx, if still bound.
func KeyFromContext(ctx context.Context) (update.SessionKey, bool) {
	b, ok := lookup(ctx)
	if !ok {
		return "", false
	}
	return b.key, true
}

// FromContext returns the bound state if it is still bound and has type T.
func FromContext[T any](ctx context.Context) (T, bool) {
	var zero T
	b, ok := ctx.Value(bindingKey{}).(*binding)
	if !ok {
		return zero, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return zero, false
	}
	v, ok := b.state.(T)
	return v, ok
}

// Bound reports whether ctx currently carries a live session binding.
func Bound(ctx context.Context) bool {
	_, ok := lookup(ctx)
	return ok
}
