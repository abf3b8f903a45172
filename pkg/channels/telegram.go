package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/zhaopengme/telemvc/pkg/bus"
	"github.com/zhaopengme/telemvc/pkg/logger"
	"github.com/zhaopengme/telemvc/pkg/update"
)

// ParseModeMarkdownHTML asks Send to convert common Markdown to Telegram
// HTML before sending.
const ParseModeMarkdownHTML = "markdown-html"

// maxChunk leaves headroom below Telegram's 4096 character message limit.
const maxChunk = 4000

var (
	reHeaders    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reBlockquote = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBoldStar   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnder  = regexp.MustCompile(`__(.+?)__`)
	reItalic     = regexp.MustCompile(`\b_([^_]+)_\b`)
	reStrikethru = regexp.MustCompile(`~~(.+?)~~`)
	reList       = regexp.MustCompile(`(?m)^[-*]\s+`)
	reCodeBlock  = regexp.MustCompile("```[\\w]*\\n?([\\s\\S]*?)```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
)

// Executor accepts events for dispatch. dispatch.Dispatcher implements it.
type Executor interface {
	Execute(ctx context.Context, event *update.Event, transport bus.Transport) error
}

type TelegramOptions struct {
	Proxy       string
	PollTimeout int
	AllowFrom   []string
}

// TelegramChannel long-polls one bot and feeds every update to the
// dispatcher. It is also the bus.Sender for that bot's replies.
type TelegramChannel struct {
	*BaseChannel
	bot       *telego.Bot
	token     string
	opts      TelegramOptions
	exec      Executor
	transport bus.Transport
	wg        sync.WaitGroup
	// sending outlives polling: replies from dispatches still draining
	// after Stop go out until Close.
	sending atomic.Bool
}

func NewTelegramChannel(token string, opts TelegramOptions, exec Executor, transport bus.Transport) (*TelegramChannel, error) {
	var botOpts []telego.BotOption

	if opts.Proxy != "" {
		proxyURL, parseErr := url.Parse(opts.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, parseErr)
		}
		botOpts = append(botOpts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	} else if os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" {
		botOpts = append(botOpts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}))
	}

	bot, err := telego.NewBot(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", opts.AllowFrom),
		bot:         bot,
		token:       token,
		opts:        opts,
		exec:        exec,
		transport:   transport,
	}, nil
}

// Bot is the identity events from this channel carry; handlers scope to it
// with routing.ForBot.
func (c *TelegramChannel) Bot() string { return c.token }

// Start begins long polling. Updates are consumed until ctx is done.
func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: c.opts.PollTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	c.sending.Store(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, updates)
	}()
	return nil
}

// Stop ends ingestion and waits for the update loop to exit. The loop ends
// when the context passed to Start is done. Send keeps working until Close.
func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot polling...")
	c.setRunning(false)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disables Send. Call it once the outbound bus has drained.
func (c *TelegramChannel) Close() {
	c.sending.Store(false)
	logger.InfoC("telegram", "Telegram bot closed")
}

func (c *TelegramChannel) consume(ctx context.Context, updates <-chan telego.Update) {
	for u := range updates {
		if !c.IsAllowed(senderIdentities(u)...) {
			logger.DebugCF("telegram", "Update rejected by allowlist", map[string]interface{}{
				"update_id": u.UpdateID,
			})
			continue
		}

		event := update.FromTelegram(c.token, u)
		if event.Type() == update.TypeUnsupported {
			continue
		}
		// Execute blocks while the worker pool is saturated, which also
		// pauses polling.
		if err := c.exec.Execute(ctx, event, c.transport); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.ErrorCF("telegram", "Failed to dispatch update", map[string]interface{}{
				"update_id": u.UpdateID,
				"error":     err.Error(),
			})
		}
	}
}

// senderIdentities lists the numeric id and username of whoever caused u.
func senderIdentities(u telego.Update) []string {
	var from *telego.User
	switch {
	case u.Message != nil:
		from = u.Message.From
	case u.EditedMessage != nil:
		from = u.EditedMessage.From
	case u.CallbackQuery != nil:
		from = &u.CallbackQuery.From
	case u.InlineQuery != nil:
		from = &u.InlineQuery.From
	case u.ChosenInlineResult != nil:
		from = &u.ChosenInlineResult.From
	case u.PreCheckoutQuery != nil:
		from = &u.PreCheckoutQuery.From
	case u.ShippingQuery != nil:
		from = &u.ShippingQuery.From
	}
	if from == nil {
		return nil
	}
	return []string{strconv.FormatInt(from.ID, 10), from.Username}
}

// Send delivers msg. A prebuilt request in msg.Request is executed as-is;
// otherwise the text is split into chunks and sent in order.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) (bus.Response, error) {
	if !c.sending.Load() {
		return bus.Response{}, fmt.Errorf("telegram bot not running")
	}

	switch req := msg.Request.(type) {
	case nil:
	case *telego.SendMessageParams:
		sent, err := c.bot.SendMessage(ctx, req)
		if err != nil {
			return bus.Response{}, err
		}
		return bus.Response{MessageID: sent.MessageID, Raw: sent}, nil
	case *telego.EditMessageTextParams:
		edited, err := c.bot.EditMessageText(ctx, req)
		if err != nil {
			return bus.Response{}, err
		}
		return bus.Response{MessageID: req.MessageID, Raw: edited}, nil
	case *telego.AnswerCallbackQueryParams:
		return bus.Response{}, c.bot.AnswerCallbackQuery(ctx, req)
	default:
		return bus.Response{}, fmt.Errorf("unsupported telegram request %T", msg.Request)
	}

	var (
		resp    bus.Response
		lastErr error
	)
	for i, params := range buildSendParams(msg) {
		sent, err := c.bot.SendMessage(ctx, params)
		if err != nil && params.ParseMode != "" {
			logger.ErrorCF("telegram", "HTML parse failed or other error, falling back to plain text", map[string]interface{}{
				"error":       err.Error(),
				"chunk_index": i,
			})
			params.ParseMode = ""
			sent, err = c.bot.SendMessage(ctx, params)
		}
		if err != nil {
			// keep going so later chunks still arrive
			lastErr = err
			continue
		}
		if resp.MessageID == 0 {
			resp = bus.Response{MessageID: sent.MessageID, Raw: sent}
		}
	}
	return resp, lastErr
}

// buildSendParams turns an outbound message into one SendMessage call per
// chunk. Only the first chunk replies to ReplyToMessageID.
func buildSendParams(msg bus.OutboundMessage) []*telego.SendMessageParams {
	markdown := msg.ParseMode == ParseModeMarkdownHTML

	chunks := []string{msg.Text}
	if markdown {
		chunks = splitMarkdownContent(msg.Text, maxChunk)
	} else if len(msg.Text) > maxChunk {
		chunks = splitPlain(msg.Text, maxChunk)
	}

	out := make([]*telego.SendMessageParams, 0, len(chunks))
	for i, chunk := range chunks {
		p := &telego.SendMessageParams{
			ChatID:              tu.ID(msg.ChatID),
			Text:                chunk,
			ParseMode:           msg.ParseMode,
			DisableNotification: msg.DisableNotification,
			MessageThreadID:     msg.ThreadID,
		}
		if markdown {
			p.Text = markdownToTelegramHTML(chunk)
			p.ParseMode = telego.ModeHTML
		}
		if i == 0 && msg.ReplyToMessageID != 0 {
			p.ReplyParameters = &telego.ReplyParameters{MessageID: msg.ReplyToMessageID}
		}
		out = append(out, p)
	}
	return out
}

// splitPlain cuts text at line breaks where possible, never exceeding max
// bytes per chunk and never inside a UTF-8 sequence.
func splitPlain(text string, max int) []string {
	var chunks []string
	for len(text) > max {
		cut := strings.LastIndexByte(text[:max], '\n')
		if cut <= 0 {
			cut = max
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = max
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	codeBlocks, text := extractCode(reCodeBlock, text, "CB")
	inlineCodes, text := extractCode(reInlineCode, text, "IC")

	text = reHeaders.ReplaceAllString(text, "$1")
	text = reBlockquote.ReplaceAllString(text, "$1")
	text = escapeHTML(text)
	text = reLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reBoldStar.ReplaceAllString(text, "<b>$1</b>")
	text = reBoldUnder.ReplaceAllString(text, "<b>$1</b>")
	text = reItalic.ReplaceAllString(text, "<i>$1</i>")
	text = reStrikethru.ReplaceAllString(text, "<s>$1</s>")
	text = reList.ReplaceAllString(text, "• ")

	for i, code := range inlineCodes {
		text = strings.ReplaceAll(text, placeholder("IC", i), "<code>"+escapeHTML(code)+"</code>")
	}
	for i, code := range codeBlocks {
		text = strings.ReplaceAll(text, placeholder("CB", i), "<pre><code>"+escapeHTML(code)+"</code></pre>")
	}
	return text
}

// extractCode swaps every match of re for a placeholder so later rewrites
// leave code untouched, returning the captured bodies in order.
func extractCode(re *regexp.Regexp, text, tag string) ([]string, string) {
	var codes []string
	text = re.ReplaceAllStringFunc(text, func(m string) string {
		codes = append(codes, re.FindStringSubmatch(m)[1])
		return placeholder(tag, len(codes)-1)
	})
	return codes, text
}

func placeholder(tag string, i int) string {
	return fmt.Sprintf("\x00%s%d\x00", tag, i)
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// splitMarkdownContent splits long text on line boundaries, closing and
// reopening fenced code blocks that straddle a cut. Lines that alone exceed
// the limit are cut with splitPlain and continue without a line break.
func splitMarkdownContent(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	// 20 bytes of slack for the fence we may have to append
	limit := maxLength - 20

	var chunks []string
	inCodeBlock := false
	codeBlockLang := ""

	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		pieces := []string{line}
		if len(line) > limit {
			size := limit - len("```"+codeBlockLang) - 1
			if size < 16 {
				size = limit
			}
			pieces = splitPlain(line, size)
		}

		for i, piece := range pieces {
			cut := false
			if current.Len() > 0 && current.Len()+len(piece)+1 > limit {
				if inCodeBlock {
					current.WriteString("\n```")
				}
				chunks = append(chunks, current.String())
				current.Reset()
				if inCodeBlock {
					current.WriteString("```" + codeBlockLang)
				}
				cut = true
			}

			if current.Len() > 0 && (i == 0 || cut) {
				current.WriteString("\n")
			}
			current.WriteString(piece)
		}

		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "```") {
			inCodeBlock = !inCodeBlock
			codeBlockLang = ""
			if inCodeBlock {
				codeBlockLang = strings.TrimPrefix(trimmed, "```")
			}
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
