package update

import (
	"strconv"
)

// Event is one inbound update. It is immutable once built; accessors report
// whether the field is present for the event's type.
type Event struct {
	typ    Type
	bot    string
	id     int64
	raw    any
	chatID *int64
	userID *int64
	text   *string
}

type Option func(*Event)

func WithChat(id int64) Option {
	return func(e *Event) { e.chatID = &id }
}

func WithUser(id int64) Option {
	return func(e *Event) { e.userID = &id }
}

func WithText(text string) Option {
	return func(e *Event) { e.text = &text }
}

// WithRaw attaches the platform payload the event was derived from.
func WithRaw(raw any) Option {
	return func(e *Event) { e.raw = raw }
}

// New builds an event for the given bot identity and update id.
func New(typ Type, bot string, id int64, opts ...Option) *Event {
	e := &Event{typ: typ, bot: bot, id: id}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Event) Type() Type  { return e.typ }
func (e *Event) Bot() string { return e.bot }
func (e *Event) ID() int64   { return e.id }
func (e *Event) Raw() any    { return e.raw }

func (e *Event) ChatID() (int64, bool) {
	if e.chatID == nil {
		return 0, false
	}
	return *e.chatID, true
}

func (e *Event) UserID() (int64, bool) {
	if e.userID == nil {
		return 0, false
	}
	return *e.userID, true
}

func (e *Event) Text() (string, bool) {
	if e.text == nil {
		return "", false
	}
	return *e.text, true
}

// SessionKey identifies the conversation an event belongs to: the chat if
// known, else the user, else the event itself.
type SessionKey string

func (e *Event) SessionKey() SessionKey {
	if id, ok := e.ChatID(); ok {
		return SessionKey("chat:" + strconv.FormatInt(id, 10))
	}
	if id, ok := e.UserID(); ok {
		return SessionKey("user:" + strconv.FormatInt(id, 10))
	}
	return SessionKey("update:" + strconv.FormatInt(e.id, 10))
}
