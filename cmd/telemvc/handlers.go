// TeleMVC - annotation-style update routing for Telegram bots
// License: MIT

package main

import (
	"fmt"

	"github.com/mymmrac/telego"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/routing"
	"github.com/zhaopengme/telemvc/pkg/session"
	"github.com/zhaopengme/telemvc/pkg/update"
)

const helpText = "Hi! I answer /ping, /echo <word> and /count."

func startHandler() string { return helpText }

func pingHandler(e *update.Event, m *telego.Message) *bus.OutboundMessage {
	chat, _ := e.ChatID()
	out := &bus.OutboundMessage{ChatID: chat, Text: "pong"}
	if m != nil {
		out.ReplyToMessageID = m.MessageID
	}
	return out
}

func echoHandler(vars routing.PathVars) string {
	return vars["text"]
}

// countHandler counts how often the conversation has called /count within
// the current session generation.
func countHandler(s *session.Session) string {
	n := s.Update("count", func(old any, ok bool) any {
		if !ok {
			return 1
		}
		return old.(int) + 1
	})
	return fmt.Sprintf("count: %d", n)
}

// callbackHandler acknowledges any button press so the client stops its
// loading indicator.
func callbackHandler(q *telego.CallbackQuery) *bus.OutboundMessage {
	if q == nil {
		return nil
	}
	return &bus.OutboundMessage{
		Request: &telego.AnswerCallbackQueryParams{CallbackQueryID: q.ID},
	}
}

func registerBuiltins(r *routing.Registry) error {
	descriptors := []struct {
		fn   any
		opts []routing.DescriptorOption
	}{
		{startHandler, []routing.DescriptorOption{routing.Matching(routing.Literal("/start"))}},
		{pingHandler, []routing.DescriptorOption{routing.Matching(routing.Literal("/ping"))}},
		{echoHandler, []routing.DescriptorOption{routing.Matching(routing.MustTemplate("/echo {text}"))}},
		{countHandler, []routing.DescriptorOption{routing.Matching(routing.Literal("/count"))}},
		{callbackHandler, []routing.DescriptorOption{routing.OnTypes(update.TypeCallbackQuery)}},
	}

	for _, d := range descriptors {
		desc, err := routing.Handle(d.fn, d.opts...)
		if err != nil {
			return err
		}
		if err := r.Register(desc); err != nil {
			return fmt.Errorf("register built-in handler: %w", err)
		}
	}
	return nil
}
