// Package progress tracks per-instance restore progress and fans updates
// out to subscribers (the status API and its websocket stream). Every saved
// instance gets its own row, so two windows of one application report
// independently.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/thechief/rememberd/internal/shared/id"
)

// State is one step of an application's restore lifecycle.
type State string

const (
	StateScheduled   State = "scheduled"
	StateLaunching   State = "launching"
	StatePositioning State = "positioning"
	StateReady       State = "ready"
	StateTimeout     State = "timeout"
	StateSkipped     State = "skipped"
	StateError       State = "error"
)

// Terminal reports whether the state ends the lifecycle for an instance.
func (s State) Terminal() bool {
	switch s {
	case StateReady, StateTimeout, StateSkipped, StateError:
		return true
	}
	return false
}

// Update is one progress transition.
type Update struct {
	Class      string      `json:"class"`
	InstanceID string      `json:"instance_id,omitempty"`
	LaunchID   id.LaunchID `json:"launch_id,omitempty"`
	State      State       `json:"state"`
	Detail     string      `json:"detail,omitempty"`
	At         time.Time   `json:"at"`
}

// Tracker holds the latest state per instance and notifies subscribers.
// Class-level notes (a skip before any instance is known) key on the class
// instead. Delivery is best effort: a subscriber that stops draining loses
// updates, never blocks the engine.
type Tracker struct {
	mu      sync.RWMutex
	current map[string]Update
	subs    map[int]chan Update
	nextSub int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		current: make(map[string]Update),
		subs:    make(map[int]chan Update),
	}
}

// Set records a transition for one instance and fans it out. An empty
// instanceID keys the update by class.
func (t *Tracker) Set(class, instanceID string, launchID id.LaunchID, state State, detail string) {
	u := Update{Class: class, InstanceID: instanceID, LaunchID: launchID, State: state, Detail: detail, At: time.Now()}

	key := instanceID
	if key == "" {
		key = class
	}
	t.mu.Lock()
	t.current[key] = u
	subs := make([]chan Update, 0, len(t.subs))
	for _, ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Snapshot returns the latest update per instance, sorted by class then
// instance id for stable API output.
func (t *Tracker) Snapshot() []Update {
	t.mu.RLock()
	out := make([]Update, 0, len(t.current))
	for _, u := range t.current {
		out = append(out, u)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

// Done reports whether every tracked instance has reached a terminal state.
func (t *Tracker) Done() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, u := range t.current {
		if !u.State.Terminal() {
			return false
		}
	}
	return true
}

// Subscribe registers an update channel. The returned cancel removes it.
func (t *Tracker) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 64)

	t.mu.Lock()
	key := t.nextSub
	t.nextSub++
	t.subs[key] = ch
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		delete(t.subs, key)
		t.mu.Unlock()
	}
}

// Reset clears all tracked state. Called when a new restore session starts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = make(map[string]Update)
	t.mu.Unlock()
}
