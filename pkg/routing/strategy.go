package routing

import (
	"github.com/zhaopengme/telemvc/pkg/update"
)

// Candidate is a descriptor that matched an event, with the specificity
// facts computed during lookup.
type Candidate struct {
	Descriptor *Descriptor
	Text       TextMatch
	// ExactBot is true when the descriptor is scoped to the event's bot
	// rather than to any bot.
	ExactBot bool
}

// Strategy ranks two candidates for the same event. Compare returns a
// negative number when a should be preferred over b, positive when b is
// preferred, and zero when the strategy cannot tell them apart. It must be
// a total preorder; ties are broken by registration order.
type Strategy interface {
	Compare(event *update.Event, a, b *Candidate) int
}

type StrategyFunc func(event *update.Event, a, b *Candidate) int

func (f StrategyFunc) Compare(event *update.Event, a, b *Candidate) int {
	return f(event, a, b)
}

// DefaultStrategy prefers, in order: an exact bot scope over any bot, the
// more specific text pattern, and the narrower set of event types.
type DefaultStrategy struct{}

func (DefaultStrategy) Compare(_ *update.Event, a, b *Candidate) int {
	if c := compareBool(a.ExactBot, b.ExactBot); c != 0 {
		return c
	}
	if c := compareText(a, b); c != 0 {
		return c
	}
	return a.Descriptor.Types.Len() - b.Descriptor.Types.Len()
}

// textClass groups pattern kinds: fixed text outranks expressions, which
// outrank no pattern at all.
func textClass(k PatternKind) int {
	switch k {
	case PatternLiteral, PatternPrefix:
		return 2
	case PatternRegex, PatternTemplate:
		return 1
	}
	return 0
}

func compareText(a, b *Candidate) int {
	ka, kb := a.Descriptor.Pattern.Kind, b.Descriptor.Pattern.Kind
	if c := textClass(kb) - textClass(ka); c != 0 {
		return c
	}
	if c := b.Text.Length - a.Text.Length; c != 0 {
		return c
	}
	// same length: whole-token literal beats raw prefix
	return compareBool(ka == PatternLiteral, kb == PatternLiteral)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	}
	return 1
}
