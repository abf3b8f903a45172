package update

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
		want  SessionKey
	}{
		{"chat wins over user", New(TypeMessage, "", 9, WithChat(42), WithUser(7)), "chat:42"},
		{"user when no chat", New(TypeInlineQuery, "", 9, WithUser(7)), "user:7"},
		{"update id as fallback", New(TypePoll, "", 9), "update:9"},
		{"negative group chat", New(TypeMessage, "", 1, WithChat(-100123)), "chat:-100123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.SessionKey())
		})
	}
}

func TestEventAccessorsReportAbsence(t *testing.T) {
	e := New(TypePoll, "bot", 3)

	_, ok := e.ChatID()
	assert.False(t, ok)
	_, ok = e.UserID()
	assert.False(t, ok)
	_, ok = e.Text()
	assert.False(t, ok)

	e = New(TypeMessage, "bot", 3, WithText(""))
	text, ok := e.Text()
	assert.True(t, ok)
	assert.Equal(t, "", text)
}

func TestTypeSet(t *testing.T) {
	s := TypesOf(TypeMessage, TypeCallbackQuery, TypeMessage)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(TypeMessage))
	assert.False(t, s.Has(TypePoll))
	assert.Equal(t, "{message,callback_query}", s.String())

	assert.False(t, AllTypes().Has(TypeUnsupported))
	assert.Equal(t, int(typeCount)-1, AllTypes().Len())
	assert.True(t, TypeSet(0).Empty())
}

func TestFromTelegram_Message(t *testing.T) {
	u := telego.Update{
		UpdateID: 77,
		Message: &telego.Message{
			MessageID: 5,
			Chat:      telego.Chat{ID: 42, Type: "private"},
			From:      &telego.User{ID: 7},
			Text:      "/ping",
		},
	}

	e := FromTelegram("tok", u)
	assert.Equal(t, TypeMessage, e.Type())
	assert.Equal(t, "tok", e.Bot())
	assert.EqualValues(t, 77, e.ID())

	chat, ok := e.ChatID()
	require.True(t, ok)
	assert.EqualValues(t, 42, chat)
	user, ok := e.UserID()
	require.True(t, ok)
	assert.EqualValues(t, 7, user)
	text, ok := e.Text()
	require.True(t, ok)
	assert.Equal(t, "/ping", text)

	raw, ok := e.Telegram()
	require.True(t, ok)
	assert.Equal(t, 5, raw.Message.MessageID)
}

func TestFromTelegram_Types(t *testing.T) {
	tests := []struct {
		name string
		u    telego.Update
		want Type
	}{
		{"edited", telego.Update{EditedMessage: &telego.Message{Chat: telego.Chat{ID: 1}}}, TypeEditedMessage},
		{"channel post", telego.Update{ChannelPost: &telego.Message{Chat: telego.Chat{ID: 1}}}, TypeChannelPost},
		{"callback", telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "q", From: telego.User{ID: 3}, Data: "yes"}}, TypeCallbackQuery},
		{"inline", telego.Update{InlineQuery: &telego.InlineQuery{From: telego.User{ID: 3}, Query: "cats"}}, TypeInlineQuery},
		{"poll", telego.Update{Poll: &telego.Poll{ID: "p"}}, TypePoll},
		{"pre checkout", telego.Update{PreCheckoutQuery: &telego.PreCheckoutQuery{From: telego.User{ID: 3}}}, TypePreCheckoutQuery},
		{"shipping", telego.Update{ShippingQuery: &telego.ShippingQuery{From: telego.User{ID: 3}}}, TypeShippingQuery},
		{"member", telego.Update{ChatMember: &telego.ChatMemberUpdated{Chat: telego.Chat{ID: 1}, From: telego.User{ID: 3}}}, TypeChatMember},
		{"empty", telego.Update{UpdateID: 1}, TypeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromTelegram("tok", tt.u).Type())
		})
	}
}

func TestFromTelegram_CallbackWithoutMessageKeysByUser(t *testing.T) {
	u := telego.Update{CallbackQuery: &telego.CallbackQuery{From: telego.User{ID: 8}, Data: "vote:1"}}
	e := FromTelegram("tok", u)
	assert.Equal(t, SessionKey("user:8"), e.SessionKey())
	text, _ := e.Text()
	assert.Equal(t, "vote:1", text)
}

func TestFromTelegram_PollKeysByUpdate(t *testing.T) {
	e := FromTelegram("tok", telego.Update{UpdateID: 31, Poll: &telego.Poll{ID: "p"}})
	assert.Equal(t, SessionKey("update:31"), e.SessionKey())
	assert.False(t, e.Type().HasText())
}
