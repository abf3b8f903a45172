package update

import (
	"math/bits"
	"strings"
)

// Type tags an inbound event with the kind of payload it carries.
type Type uint8

const (
	TypeUnsupported Type = iota
	TypeMessage
	TypeEditedMessage
	TypeCallbackQuery
	TypePoll
	TypeInlineQuery
	TypeChosenInlineResult
	TypePreCheckoutQuery
	TypeShippingQuery
	TypeChannelPost
	TypeEditedChannelPost
	TypeChatMember

	typeCount
)

var typeNames = [...]string{
	TypeUnsupported:        "unsupported",
	TypeMessage:            "message",
	TypeEditedMessage:      "edited_message",
	TypeCallbackQuery:      "callback_query",
	TypePoll:               "poll",
	TypeInlineQuery:        "inline_query",
	TypeChosenInlineResult: "chosen_inline_result",
	TypePreCheckoutQuery:   "pre_checkout_query",
	TypeShippingQuery:      "shipping_query",
	TypeChannelPost:        "channel_post",
	TypeEditedChannelPost:  "edited_channel_post",
	TypeChatMember:         "chat_member",
}

func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return "unknown"
}

// HasText reports whether events of this type carry text that patterns
// can match against.
func (t Type) HasText() bool {
	switch t {
	case TypeMessage, TypeEditedMessage, TypeCallbackQuery, TypeInlineQuery,
		TypeChosenInlineResult, TypeChannelPost, TypeEditedChannelPost:
		return true
	}
	return false
}

// TypeSet is a set of event types. The zero value is empty.
type TypeSet uint16

func TypesOf(types ...Type) TypeSet {
	var s TypeSet
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

// AllTypes contains every supported type, excluding TypeUnsupported.
func AllTypes() TypeSet {
	var s TypeSet
	for t := TypeMessage; t < typeCount; t++ {
		s = s.With(t)
	}
	return s
}

func (s TypeSet) With(t Type) TypeSet {
	if t >= typeCount {
		return s
	}
	return s | 1<<t
}

func (s TypeSet) Has(t Type) bool {
	return t < typeCount && s&(1<<t) != 0
}

func (s TypeSet) Len() int {
	return bits.OnesCount16(uint16(s))
}

func (s TypeSet) Empty() bool {
	return s == 0
}

func (s TypeSet) Types() []Type {
	out := make([]Type, 0, s.Len())
	for t := Type(0); t < typeCount; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s TypeSet) String() string {
	names := make([]string, 0, s.Len())
	for _, t := range s.Types() {
		names = append(names, t.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
