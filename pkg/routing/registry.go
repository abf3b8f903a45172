package routing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zhaopengme/telemvc/pkg/logger"
	"github.com/zhaopengme/telemvc/pkg/update"
)

// ErrDuplicateHandler is returned when a descriptor with the same bot scope,
// event types and pattern is already registered.
var ErrDuplicateHandler = errors.New("duplicate handler registration")

// Match is the result of a successful lookup.
type Match struct {
	Descriptor *Descriptor
	Vars       PathVars
	// Ambiguous is set when the strategy could not separate the winner from
	// another candidate and registration order decided.
	Ambiguous bool
}

// Registry stores handler descriptors and picks the best one per event.
// Registration may happen concurrently with lookups but is expected to be a
// startup phase.
type Registry struct {
	mu          sync.RWMutex
	descriptors []*Descriptor
	signatures  map[string]*Descriptor
	strategy    Strategy
}

type RegistryOption func(*Registry)

func WithStrategy(s Strategy) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.strategy = s
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		signatures: make(map[string]*Descriptor),
		strategy:   DefaultStrategy{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return errors.New("descriptor is nil")
	}
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d.order != 0 {
		return fmt.Errorf("descriptor %s is already registered", d)
	}
	sig := d.signature()
	if existing, ok := r.signatures[sig]; ok {
		return fmt.Errorf("%w: %s conflicts with %s", ErrDuplicateHandler, d, existing)
	}

	d.order = len(r.descriptors) + 1
	r.descriptors = append(r.descriptors, d)
	r.signatures[sig] = d

	logger.DebugCF("routing", "Registered handler", map[string]interface{}{
		"handler": d.Method.Name(),
		"types":   d.Types.String(),
		"pattern": d.Pattern.String(),
		"order":   d.order,
	})
	return nil
}

// Lookup returns the best handler for the event, or false if none matches.
func (r *Registry) Lookup(event *update.Event) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	text, hasText := event.Text()
	var best *Candidate
	tied := false

	for _, d := range r.descriptors {
		if d.Bot != AnyBot && d.Bot != event.Bot() {
			continue
		}
		if !d.Types.Has(event.Type()) {
			continue
		}
		tm, ok := d.Pattern.Match(text, hasText)
		if !ok {
			continue
		}

		c := &Candidate{Descriptor: d, Text: tm, ExactBot: d.Bot != AnyBot}
		if best == nil {
			best = c
			continue
		}
		// descriptors are visited in registration order, so on a tie the
		// current best is the earlier one and stays
		switch cmp := r.strategy.Compare(event, c, best); {
		case cmp < 0:
			best, tied = c, false
		case cmp == 0:
			tied = true
		}
	}

	if best == nil {
		return Match{}, false
	}
	return Match{Descriptor: best.Descriptor, Vars: best.Text.Vars, Ambiguous: tied}, true
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
