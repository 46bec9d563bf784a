package send

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chatit/chatit/internal/bus"
)

// Status is the observable state of the send pipeline.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

// validTransitions maps each status to the statuses it may move to.
var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusInProgress},
	StatusInProgress: {StatusSucceeded, StatusFailed},
	StatusSucceeded:  {StatusInProgress},
	StatusFailed:     {StatusInProgress},
}

// StatusChange is the bus payload published on every transition.
type StatusChange struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// Tracker serializes status transitions for one pipeline. A transition
// to IN_PROGRESS while a send is running is rejected, which is what
// makes concurrent sends on the same pipeline fail fast.
type Tracker struct {
	mu      sync.Mutex
	current Status
	bus     *bus.Bus
}

// NewTracker starts in IDLE.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{current: StatusIdle, bus: b}
}

// Current returns the current status.
func (t *Tracker) Current() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Transition moves to the given status, publishing the change.
func (t *Tracker) Transition(to Status) error {
	t.mu.Lock()
	from := t.current
	if !slices.Contains(validTransitions[from], to) {
		t.mu.Unlock()
		return fmt.Errorf("invalid send status transition: %s -> %s", from, to)
	}
	t.current = to
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(bus.KindSendStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}
