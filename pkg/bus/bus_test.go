package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	msg  OutboundMessage
	resp Response
	err  error
}

func collect() (Callback, <-chan result) {
	ch := make(chan result, 16)
	return Callback{
		OnSuccess: func(m OutboundMessage, r Response) { ch <- result{msg: m, resp: r} },
		OnFailure: func(m OutboundMessage, err error) { ch <- result{msg: m, err: err} },
	}, ch
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	return result{}
}

func TestMessageBus_RoutesByBot(t *testing.T) {
	mb := NewMessageBus(4)
	var mu sync.Mutex
	var got []string
	sender := func(name string) Sender {
		return SenderFunc(func(_ context.Context, msg OutboundMessage) (Response, error) {
			mu.Lock()
			got = append(got, name+":"+msg.Text)
			mu.Unlock()
			return Response{MessageID: 7}, nil
		})
	}
	mb.RegisterSender("a", sender("a"))
	mb.RegisterSender("b", sender("b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	cb, ch := collect()
	mb.Send(ctx, OutboundMessage{Bot: "b", ChatID: 1, Text: "hi"}, cb)
	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, 7, r.resp.MessageID)

	mu.Lock()
	assert.Equal(t, []string{"b:hi"}, got)
	mu.Unlock()
}

func TestMessageBus_SendFailureReachesCallback(t *testing.T) {
	mb := NewMessageBus(1)
	mb.RegisterSender("a", SenderFunc(func(context.Context, OutboundMessage) (Response, error) {
		return Response{}, errors.New("429 too many requests")
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	cb, ch := collect()
	mb.Send(ctx, OutboundMessage{Bot: "a"}, cb)
	r := wait(t, ch)
	assert.ErrorIs(t, r.err, ErrTransportSendFailed)
	assert.Contains(t, r.err.Error(), "429")
}

func TestMessageBus_UnknownBot(t *testing.T) {
	mb := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	cb, ch := collect()
	mb.Send(ctx, OutboundMessage{Bot: "ghost"}, cb)
	r := wait(t, ch)
	assert.ErrorIs(t, r.err, ErrNoSender)
	assert.ErrorIs(t, r.err, ErrTransportSendFailed)
}

func TestMessageBus_FallbackSender(t *testing.T) {
	mb := NewMessageBus(1)
	mb.SetFallbackSender(SenderFunc(func(context.Context, OutboundMessage) (Response, error) {
		return Response{MessageID: 1}, nil
	}))
	_, ok := mb.GetSender("anything")
	assert.True(t, ok)
}

func TestMessageBus_SenderPanicIsContained(t *testing.T) {
	mb := NewMessageBus(1)
	mb.RegisterSender("a", SenderFunc(func(context.Context, OutboundMessage) (Response, error) {
		panic("nil map")
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	cb, ch := collect()
	mb.Send(ctx, OutboundMessage{Bot: "a"}, cb)
	assert.ErrorIs(t, wait(t, ch).err, ErrTransportSendFailed)
}

func TestMessageBus_CloseDrainsQueued(t *testing.T) {
	mb := NewMessageBus(8)
	mb.RegisterSender("a", SenderFunc(func(context.Context, OutboundMessage) (Response, error) {
		return Response{}, nil
	}))

	cb, ch := collect()
	for i := 0; i < 3; i++ {
		mb.Send(context.Background(), OutboundMessage{Bot: "a"}, cb)
	}
	mb.Close()

	done := make(chan struct{})
	go func() {
		mb.Run(context.Background())
		close(done)
	}()
	<-done

	for i := 0; i < 3; i++ {
		assert.NoError(t, wait(t, ch).err)
	}

	mb.Send(context.Background(), OutboundMessage{Bot: "a"}, cb)
	assert.ErrorIs(t, wait(t, ch).err, ErrBusClosed)
}

func TestMessageBus_SendRespectsContext(t *testing.T) {
	mb := NewMessageBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cb, ch := collect()
	mb.Send(ctx, OutboundMessage{Bot: "a"}, cb)
	assert.ErrorIs(t, wait(t, ch).err, context.Canceled)
}
