// Package session holds the server- and client-side data model a reload
// session is built from: StateBytes, the authoritative server session
// state, and the client's own session state.
package session

import (
	"sync"
)

// StateBytes is an opaque, possibly-empty byte sequence representing user
// application state, serialized by user code. The runtime never interprets
// its contents.
type StateBytes []byte

// Empty reports whether the state carries no bytes.
func (s StateBytes) Empty() bool {
	return len(s) == 0
}

// ServerState is the server-side, single-instance, process-lifetime session
// state described by the data model.
type ServerState struct {
	mu sync.Mutex

	// LastState is the authoritative saved state; initially absent.
	LastState StateBytes
	hasState  bool

	// LastVersion is the version tag of the library that produced
	// LastState, handed forward as the next Start's PrevVersion so a
	// freshly loaded library can decide compatibility before trusting the
	// carried-over bytes.
	LastVersion []byte
	hasVersion  bool

	// FileExists tracks whether the artifact currently exists on disk.
	FileExists bool
}

// NewServerState returns a ServerState with no saved state and no client yet.
func NewServerState() *ServerState {
	return &ServerState{}
}

// SetLastState records state received from an explicit SetState message,
// along with the version tag of the library that produced it (if any).
// last_state is updated only this way; it is never fabricated by the server.
func (s *ServerState) SetLastState(state StateBytes, version []byte, hasVersion bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastState = state
	s.hasState = true
	if hasVersion {
		s.LastVersion = version
		s.hasVersion = true
	} else {
		s.LastVersion = nil
		s.hasVersion = false
	}
}

// HasLastState reports whether a SetState has ever been recorded.
func (s *ServerState) HasLastState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasState
}

// SnapshotLastState returns a copy of the currently recorded state and
// whether one is present, safe to read concurrently with SetLastState.
func (s *ServerState) SnapshotLastState() (StateBytes, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasState {
		return nil, false
	}
	out := make(StateBytes, len(s.LastState))
	copy(out, s.LastState)
	return out, true
}

// SnapshotLastVersion returns a copy of the version tag recorded alongside
// the last state, and whether one is present.
func (s *ServerState) SnapshotLastVersion() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasVersion {
		return nil, false
	}
	out := make([]byte, len(s.LastVersion))
	copy(out, s.LastVersion)
	return out, true
}

// ClearLastState discards the recorded state and version tag. A hard
// restart clears custody entirely rather than carrying state across the
// server's own re-execution.
func (s *ServerState) ClearLastState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastState = nil
	s.hasState = false
	s.LastVersion = nil
	s.hasVersion = false
}

// ClientState is the client-side session state described by the data model.
// A single client process holds at most one of these for its lifetime.
type ClientState struct {
	// ID is a per-session identifier used purely for log correlation; it
	// never crosses the wire.
	ID string

	// PendingState is received from Start, consumed on the next run.
	PendingState StateBytes
	hasPending   bool

	// Loaded is set once Start has arrived at least once.
	Loaded bool
}

// NewClientState returns a fresh, unloaded ClientState for the given session id.
func NewClientState(id string) *ClientState {
	return &ClientState{ID: id}
}

// SetPendingState stores the state carried by a Start message.
func (c *ClientState) SetPendingState(state StateBytes) {
	c.PendingState = state
	c.hasPending = true
	c.Loaded = true
}

// TakePendingState returns and clears the pending state, if any.
func (c *ClientState) TakePendingState() (StateBytes, bool) {
	if !c.hasPending {
		return nil, false
	}
	state := c.PendingState
	c.PendingState = nil
	c.hasPending = false
	return state, true
}
