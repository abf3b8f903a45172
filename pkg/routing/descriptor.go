package routing

import (
	"fmt"

	"github.com/zhaopengme/telemvc/pkg/update"
)

// AnyBot is the bot scope that accepts events from every bot.
const AnyBot = ""

// Descriptor binds a matching criterion to a handler method. It must not be
// modified after registration.
type Descriptor struct {
	// Bot is the bot identity (token) the handler is scoped to, or AnyBot.
	Bot     string
	Types   update.TypeSet
	Pattern Pattern
	Method  *Method

	order int
}

type DescriptorOption func(*Descriptor)

func ForBot(bot string) DescriptorOption {
	return func(d *Descriptor) { d.Bot = bot }
}

func OnTypes(types ...update.Type) DescriptorOption {
	return func(d *Descriptor) { d.Types = update.TypesOf(types...) }
}

func Matching(p Pattern) DescriptorOption {
	return func(d *Descriptor) { d.Pattern = p }
}

// Handle builds a descriptor for fn. Without OnTypes it accepts messages only.
func Handle(fn any, opts ...DescriptorOption) (*Descriptor, error) {
	m, err := NewMethod(fn)
	if err != nil {
		return nil, err
	}
	d := &Descriptor{
		Bot:    AnyBot,
		Types:  update.TypesOf(update.TypeMessage),
		Method: m,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func MustHandle(fn any, opts ...DescriptorOption) *Descriptor {
	d, err := Handle(fn, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Order is the registration sequence number, starting at 1. Zero means the
// descriptor was never registered.
func (d *Descriptor) Order() int { return d.order }

func (d *Descriptor) validate() error {
	if d.Method == nil {
		return fmt.Errorf("descriptor %s has no handler method", d)
	}
	if d.Types.Empty() {
		return fmt.Errorf("descriptor %s accepts no event types", d)
	}
	return nil
}

// signature identifies descriptors that would be indistinguishable at lookup.
func (d *Descriptor) signature() string {
	return fmt.Sprintf("%q|%d|%s", d.Bot, d.Types, d.Pattern.key())
}

func (d *Descriptor) String() string {
	bot := "any"
	if d.Bot != AnyBot {
		bot = maskToken(d.Bot)
	}
	name := "<nil>"
	if d.Method != nil {
		name = d.Method.Name()
	}
	return fmt.Sprintf("%s[bot=%s types=%s pattern=%s]", name, bot, d.Types, d.Pattern)
}

func maskToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:4] + "***"
}
