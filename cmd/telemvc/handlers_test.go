package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/dispatch"
	"github.com/zhaopengme/telemvc/pkg/routing"
	"github.com/zhaopengme/telemvc/pkg/session"
	"github.com/zhaopengme/telemvc/pkg/update"
)

type captureTransport struct {
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (c *captureTransport) Send(_ context.Context, msg bus.OutboundMessage, cb bus.Callback) {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	cb.OnSuccess(msg, bus.Response{})
}

func newBuiltinDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	registry := routing.NewRegistry()
	require.NoError(t, registerBuiltins(registry))

	sessions, err := session.NewStore[*session.Session](time.Hour)
	require.NoError(t, err)
	pool, err := dispatch.NewPool(1, 1, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
		sessions.Close()
	})

	d, err := dispatch.New(registry, sessions, pool)
	require.NoError(t, err)
	return d
}

func telegramText(id int, text string) *update.Event {
	return update.FromTelegram("tok", telego.Update{
		UpdateID: id,
		Message: &telego.Message{
			MessageID: 100 + id,
			Text:      text,
			Chat:      telego.Chat{ID: 42},
			From:      &telego.User{ID: 7},
		},
	})
}

func TestBuiltins(t *testing.T) {
	d := newBuiltinDispatcher(t)
	transport := &captureTransport{}

	for i, text := range []string{"/start", "/ping", "/echo hello", "/count", "/count", "unknown"} {
		d.Process(context.Background(), telegramText(i+1, text), transport)
	}

	require.Len(t, transport.sent, 5)
	assert.Equal(t, helpText, transport.sent[0].Text)

	ping := transport.sent[1]
	assert.Equal(t, "pong", ping.Text)
	assert.EqualValues(t, 42, ping.ChatID)
	assert.Equal(t, 102, ping.ReplyToMessageID)
	assert.Equal(t, "tok", ping.Bot)

	assert.Equal(t, "hello", transport.sent[2].Text)
	assert.Equal(t, "count: 1", transport.sent[3].Text)
	assert.Equal(t, "count: 2", transport.sent[4].Text)
}

func TestCallbackQueryIsAnswered(t *testing.T) {
	d := newBuiltinDispatcher(t)
	transport := &captureTransport{}

	event := update.FromTelegram("tok", telego.Update{
		UpdateID:      9,
		CallbackQuery: &telego.CallbackQuery{ID: "cb-1", From: telego.User{ID: 7}, Data: "x"},
	})
	req := d.Process(context.Background(), event, transport)

	require.NoError(t, req.Err)
	require.Len(t, transport.sent, 1)
	answer, ok := transport.sent[0].Request.(*telego.AnswerCallbackQueryParams)
	require.True(t, ok)
	assert.Equal(t, "cb-1", answer.CallbackQueryID)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("short"))
	assert.Equal(t, "1234****wxyz", maskToken("1234:abcdefwxyz"))
}
