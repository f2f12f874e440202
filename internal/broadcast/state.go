// Package broadcast maintains per-issue live state snapshots and fans out
// updates to dashboard subscribers. The state store doubles as a read-only
// backend so dashboards sit behind the same capability contract as real
// trackers.
package broadcast

import (
	"sync"
	"time"

	"github.com/andywolf/beadbridge/internal/tracker"
)

// IssueState is the dashboard snapshot for one issue. Snapshots are
// replaced wholesale per key, never partially mutated.
type IssueState struct {
	Diagram   string             `json:"diagram"`
	Metrics   tracker.EpicStatus `json:"metrics"`
	Issues    []tracker.Issue    `json:"issues"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Envelope is the live-update wire shape delivered to subscribers.
type Envelope struct {
	Type    string     `json:"type"`
	IssueID string     `json:"issueId"`
	Data    IssueState `json:"data"`
}

// Broadcaster delivers envelopes to subscribers. Delivery is
// fire-and-forget; failures never propagate back to the state writer.
type Broadcaster interface {
	Broadcast(env Envelope)
}

// StateStore is the keyed live-state map. Updates to distinct issue ids
// never conflict; concurrent updates to the same id are last-write-wins in
// delivery order.
type StateStore struct {
	mu          sync.RWMutex
	states      map[string]IssueState
	broadcaster Broadcaster
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]IssueState)}
}

// AttachBroadcaster wires a broadcaster; subsequent updates are emitted
// synchronously as {type:"update"} envelopes.
func (s *StateStore) AttachBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// UpdateState replaces the snapshot for id and emits one update envelope.
func (s *StateStore) UpdateState(id string, state IssueState) {
	s.mu.Lock()
	s.states[id] = state
	b := s.broadcaster
	s.mu.Unlock()

	if b != nil {
		b.Broadcast(Envelope{Type: "update", IssueID: id, Data: state})
	}
}

// GetState returns the snapshot for id, or ok=false when absent.
func (s *StateStore) GetState(id string) (IssueState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	return state, ok
}

// All returns a copy of every snapshot, keyed by issue id.
func (s *StateStore) All() map[string]IssueState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]IssueState, len(s.states))
	for id, state := range s.states {
		out[id] = state
	}
	return out
}
