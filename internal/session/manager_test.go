package session

import "testing"

func TestManagerCreateAndGet(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	s := New("steam", testParams(), 0, nil)
	m.Create(s)

	got := m.Get(s.ID)
	if got != s {
		t.Fatal("Get did not return the created session")
	}
	if len(m.List()) != 1 {
		t.Fatalf("List returned %d sessions, want 1", len(m.List()))
	}
}

func TestManagerFindReattachablePrefersNewestOverTerminating(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	key := Key{Application: "steam", Params: testParams()}

	terminating := New("steam", testParams(), 0, nil)
	terminating.MarkReady()
	terminating.BeginTerminating()
	m.Create(terminating)

	ready := New("steam", testParams(), 0, nil)
	ready.MarkReady()
	m.Create(ready)

	found := m.FindReattachable(key)
	if found != ready {
		t.Fatal("FindReattachable should skip a terminating session in favor of a live one")
	}
}

func TestManagerFindReattachableSharesAnAlreadyAttachedSession(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	key := Key{Application: "steam", Params: testParams()}

	s := New("steam", testParams(), 0, nil)
	s.Attach(&recordingAttachment{id: "a1"})
	m.Create(s)

	found := m.FindReattachable(key)
	if found != s {
		t.Fatal("FindReattachable should return an already-attached session so a second client can share it")
	}
}

func TestManagerFindReattachableNoneWhenTerminating(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	key := Key{Application: "steam", Params: testParams()}

	s := New("steam", testParams(), 0, nil)
	s.Attach(&recordingAttachment{id: "a1"})
	s.BeginTerminating()
	m.Create(s)

	if found := m.FindReattachable(key); found != nil {
		t.Fatal("expected no reattachable session once it has begun terminating")
	}
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)
	s := New("steam", testParams(), 0, nil)
	m.Create(s)

	m.Remove(s.ID)
	if m.Get(s.ID) != nil {
		t.Fatal("Get returned a removed session")
	}
	if len(m.List()) != 0 {
		t.Fatal("List should be empty after Remove")
	}
}
