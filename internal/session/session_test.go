package session

import "testing"

func TestServerState_SetLastStateThenSnapshot(t *testing.T) {
	s := NewServerState()

	if _, ok := s.SnapshotLastState(); ok {
		t.Fatal("expected no last state before any SetLastState")
	}

	s.SetLastState(StateBytes("hello"), []byte("v1"), true)

	got, ok := s.SnapshotLastState()
	if !ok {
		t.Fatal("expected last state to be present")
	}
	if string(got) != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}

	// Mutating the returned slice must not affect internal state.
	got[0] = 'X'
	got2, _ := s.SnapshotLastState()
	if string(got2) != "hello" {
		t.Errorf("snapshot must be a copy, internal state got corrupted: %q", got2)
	}
}

func TestServerState_HasLastState(t *testing.T) {
	s := NewServerState()
	if s.HasLastState() {
		t.Fatal("fresh ServerState must not have last state")
	}
	s.SetLastState(nil, nil, false)
	if !s.HasLastState() {
		t.Fatal("an explicit SetLastState with empty bytes still counts as present")
	}
}

func TestServerState_SetLastStateTracksVersion(t *testing.T) {
	s := NewServerState()
	s.SetLastState(StateBytes("x"), []byte("v1"), true)

	version, ok := s.SnapshotLastVersion()
	if !ok || string(version) != "v1" {
		t.Fatalf("expected version v1, got %q ok=%v", version, ok)
	}

	s.SetLastState(StateBytes("y"), nil, false)
	if _, ok := s.SnapshotLastVersion(); ok {
		t.Fatal("expected no version once SetLastState is called without one")
	}
}

func TestServerState_ClearLastState(t *testing.T) {
	s := NewServerState()
	s.SetLastState(StateBytes("x"), []byte("v1"), true)
	s.ClearLastState()

	if s.HasLastState() {
		t.Fatal("expected no last state after ClearLastState")
	}
	if _, ok := s.SnapshotLastVersion(); ok {
		t.Fatal("expected no version after ClearLastState")
	}
}

func TestClientState_PendingStateRoundTrip(t *testing.T) {
	c := NewClientState("sess-1")
	if c.Loaded {
		t.Fatal("fresh ClientState must not be loaded")
	}

	c.SetPendingState(StateBytes("state-bytes"))
	if !c.Loaded {
		t.Fatal("SetPendingState must mark the client loaded")
	}

	got, ok := c.TakePendingState()
	if !ok || string(got) != "state-bytes" {
		t.Fatalf("expected pending state to round-trip, got %q ok=%v", got, ok)
	}

	if _, ok := c.TakePendingState(); ok {
		t.Fatal("pending state must be consumed after first take")
	}
}

func TestStateBytesEmpty(t *testing.T) {
	var s StateBytes
	if !s.Empty() {
		t.Error("nil StateBytes should be empty")
	}
	s = StateBytes("x")
	if s.Empty() {
		t.Error("non-empty StateBytes should not report empty")
	}
}
