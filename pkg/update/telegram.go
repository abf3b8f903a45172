package update

import (
	"github.com/mymmrac/telego"
)

// FromTelegram converts a Bot API update received by bot into an Event.
// The original update is kept as the raw payload.
func FromTelegram(bot string, u telego.Update) *Event {
	opts := []Option{WithRaw(&u)}
	typ := TypeUnsupported

	switch {
	case u.Message != nil:
		typ = TypeMessage
		opts = append(opts, messageOptions(u.Message)...)
	case u.EditedMessage != nil:
		typ = TypeEditedMessage
		opts = append(opts, messageOptions(u.EditedMessage)...)
	case u.ChannelPost != nil:
		typ = TypeChannelPost
		opts = append(opts, messageOptions(u.ChannelPost)...)
	case u.EditedChannelPost != nil:
		typ = TypeEditedChannelPost
		opts = append(opts, messageOptions(u.EditedChannelPost)...)
	case u.CallbackQuery != nil:
		typ = TypeCallbackQuery
		q := u.CallbackQuery
		opts = append(opts, WithUser(q.From.ID), WithText(q.Data))
		if q.Message != nil {
			opts = append(opts, WithChat(q.Message.GetChat().ID))
		}
	case u.InlineQuery != nil:
		typ = TypeInlineQuery
		opts = append(opts, WithUser(u.InlineQuery.From.ID), WithText(u.InlineQuery.Query))
	case u.ChosenInlineResult != nil:
		typ = TypeChosenInlineResult
		opts = append(opts, WithUser(u.ChosenInlineResult.From.ID), WithText(u.ChosenInlineResult.Query))
	case u.PreCheckoutQuery != nil:
		typ = TypePreCheckoutQuery
		opts = append(opts, WithUser(u.PreCheckoutQuery.From.ID))
	case u.ShippingQuery != nil:
		typ = TypeShippingQuery
		opts = append(opts, WithUser(u.ShippingQuery.From.ID))
	case u.Poll != nil:
		typ = TypePoll
	case u.ChatMember != nil:
		typ = TypeChatMember
		opts = append(opts, WithChat(u.ChatMember.Chat.ID), WithUser(u.ChatMember.From.ID))
	case u.MyChatMember != nil:
		typ = TypeChatMember
		opts = append(opts, WithChat(u.MyChatMember.Chat.ID), WithUser(u.MyChatMember.From.ID))
	}

	return New(typ, bot, int64(u.UpdateID), opts...)
}

func messageOptions(m *telego.Message) []Option {
	opts := []Option{WithChat(m.Chat.ID)}
	if m.From != nil {
		opts = append(opts, WithUser(m.From.ID))
	}
	switch {
	case m.Text != "":
		opts = append(opts, WithText(m.Text))
	case m.Caption != "":
		opts = append(opts, WithText(m.Caption))
	}
	return opts
}

// Telegram returns the Bot API update the event was built from, if any.
func (e *Event) Telegram() (*telego.Update, bool) {
	u, ok := e.raw.(*telego.Update)
	return u, ok && u != nil
}
