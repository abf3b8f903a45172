package bus

// OutboundMessage is a reply produced by a handler, addressed to a chat of
// the bot that received the original event.
type OutboundMessage struct {
	Bot                 string            `json:"-"`
	ChatID              int64             `json:"chat_id"`
	ThreadID            int               `json:"thread_id,omitempty"`
	Text                string            `json:"text"`
	ParseMode           string            `json:"parse_mode,omitempty"`
	DisableNotification bool              `json:"disable_notification,omitempty"`
	ReplyToMessageID    int               `json:"reply_to_message_id,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`

	// Request, when set, is a prebuilt platform call (for Telegram, a
	// *telego.SendMessageParams or similar) that the sender executes as-is.
	Request any `json:"-"`
}

// Response is what the platform returned for a delivered message.
type Response struct {
	MessageID int
	Raw       any
}

// Callback receives the result of an asynchronous send. Either func may be nil.
type Callback struct {
	OnSuccess func(msg OutboundMessage, resp Response)
	OnFailure func(msg OutboundMessage, err error)
}

func (c Callback) success(msg OutboundMessage, resp Response) {
	if c.OnSuccess != nil {
		c.OnSuccess(msg, resp)
	}
}

func (c Callback) failure(msg OutboundMessage, err error) {
	if c.OnFailure != nil {
		c.OnFailure(msg, err)
	}
}

type envelope struct {
	msg OutboundMessage
	cb  Callback
}
