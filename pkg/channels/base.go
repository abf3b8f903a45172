package channels

import (
	"strings"
	"sync/atomic"
)

// BaseChannel carries the state every channel shares: its name, whether it
// is running and who may talk to it.
type BaseChannel struct {
	name      string
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, allowList: allowList}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) setRunning(running bool) { c.running.Store(running) }

// IsAllowed reports whether a sender is on the allow list. Each entry is
// compared against every identity the sender has (numeric id, username);
// a leading "@" on either side is ignored. An empty list allows everyone.
func (c *BaseChannel) IsAllowed(identities ...string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		allowed = strings.TrimPrefix(allowed, "@")
		for _, id := range identities {
			if id != "" && strings.TrimPrefix(id, "@") == allowed {
				return true
			}
		}
	}
	return false
}
