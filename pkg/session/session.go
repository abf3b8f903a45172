package session

import (
	"sort"
	"sync"
	"time"

	"github.com/zhaopengme/telemvc/pkg/update"
)

// Session is the default per-conversation state: a concurrency-safe bag of
// named attributes.
type Session struct {
	Key     update.SessionKey
	Created time.Time

	mu    sync.RWMutex
	attrs map[string]any
}

func NewSession(key update.SessionKey) *Session {
	return &Session{
		Key:     key,
		Created: time.Now(),
		attrs:   make(map[string]any),
	}
}

func (s *Session) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[name]
	return v, ok
}

func (s *Session) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[name] = value
}

func (s *Session) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, name)
}

// Update applies fn to the current value of name under the session lock and
// stores the result.
func (s *Session) Update(name string, fn func(old any, ok bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.attrs[name]
	v := fn(old, ok)
	s.attrs[name] = v
	return v
}

func (s *Session) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Destroy drops all attributes.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.attrs)
}
