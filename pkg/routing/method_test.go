package routing

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMethod_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		fn        any
		wantRet   reflect.Type
		wantError bool
	}{
		{"no results", func(int) {}, nil, false},
		{"value", func(int) string { return "" }, reflect.TypeOf(""), false},
		{"error only", func() error { return nil }, nil, false},
		{"value and error", func() (string, error) { return "", nil }, reflect.TypeOf(""), false},
		{"bad second result", func() (string, int) { return "", 0 }, nil, true},
		{"variadic", func(...int) {}, nil, true},
		{"not a func", 42, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMethod(tt.fn)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRet, m.Returns())
		})
	}
}

func TestMethodCall(t *testing.T) {
	m, err := NewMethod(func(a int, b string) (string, error) {
		if a < 0 {
			return "", errors.New("negative")
		}
		return b, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{reflect.TypeOf(0), reflect.TypeOf("")}, m.Params())

	out, err := m.Call([]any{1, "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = m.Call([]any{-1, "x"})
	assert.EqualError(t, err, "negative")

	_, err = m.Call([]any{1})
	assert.Error(t, err)

	_, err = m.Call([]any{"wrong", "x"})
	assert.Error(t, err)
}

func TestMethodCall_NilResult(t *testing.T) {
	type reply struct{}
	m, err := NewMethod(func() *reply { return nil })
	require.NoError(t, err)

	out, err := m.Call(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
