package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindAndRelease(t *testing.T) {
	sess := NewSession("chat:1")
	ctx, release := Bind(context.Background(), "chat:1", sess)

	got, ok := FromContext[*Session](ctx)
	assert.True(t, ok)
	assert.Same(t, sess, got)
	key, ok := KeyFromContext(ctx)
	assert.True(t, ok)
	assert.EqualValues(t, "chat:1", key)

	_, ok = FromContext[string](ctx)
	assert.False(t, ok, "type mismatch")

	release()
	release()

	_, ok = FromContext[*Session](ctx)
	assert.False(t, ok)
	assert.False(t, Bound(ctx))
	_, ok = KeyFromContext(ctx)
	assert.False(t, ok)
}

func TestFromContext_Unbound(t *testing.T) {
	_, ok := FromContext[*Session](context.Background())
	assert.False(t, ok)
	assert.False(t, Bound(context.Background()))
}

func TestSessionAttributes(t *testing.T) {
	s := NewSession("chat:1")
	s.Set("b", 1)
	s.Set("a", "x")

	v, ok := s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, s.Names())

	n := s.Update("b", func(old any, ok bool) any { return old.(int) + 1 })
	assert.Equal(t, 2, n)

	s.Delete("a")
	_, ok = s.Get("a")
	assert.False(t, ok)

	s.Destroy()
	assert.Empty(t, s.Names())
}
