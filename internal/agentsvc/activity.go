package agentsvc

import (
	"sync"
	"time"

	"github.com/spuff/spuff/pkg/agentapi"
)

// activityLog is the supplemented /activity ring buffer: a bounded record
// of recent authenticated requests, beyond the bare last-activity
// timestamp spec.md requires for the watchdog.
type activityLog struct {
	mu       sync.Mutex
	buf      []agentapi.ActivityEntry
	capacity int
	next     int
	full     bool
}

func newActivityLog(capacity int) *activityLog {
	return &activityLog{buf: make([]agentapi.ActivityEntry, capacity), capacity: capacity}
}

func (a *activityLog) record(action, detail string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf[a.next] = agentapi.ActivityEntry{Action: action, Detail: detail, Timestamp: time.Now()}
	a.next = (a.next + 1) % a.capacity
	if a.next == 0 {
		a.full = true
	}
}

// entries returns every recorded activity, oldest first.
func (a *activityLog) entries() []agentapi.ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.full {
		out := make([]agentapi.ActivityEntry, a.next)
		copy(out, a.buf[:a.next])
		return out
	}

	out := make([]agentapi.ActivityEntry, a.capacity)
	copy(out, a.buf[a.next:])
	copy(out[a.capacity-a.next:], a.buf[:a.next])
	return out
}
