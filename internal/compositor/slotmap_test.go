package compositor

import "testing"

func TestSlotMapInsertGet(t *testing.T) {
	m := NewSlotMap[string]()
	ref := m.Insert("hello")

	got, ok := m.Get(ref)
	if !ok || got != "hello" {
		t.Fatalf("Get(%v) = %q, %v, want %q, true", ref, got, ok, "hello")
	}
}

func TestSlotMapStaleRefAfterRemove(t *testing.T) {
	m := NewSlotMap[int]()
	ref := m.Insert(1)

	if !m.Remove(ref) {
		t.Fatal("Remove returned false on a live ref")
	}
	if _, ok := m.Get(ref); ok {
		t.Fatal("Get succeeded on a removed ref")
	}

	reused := m.Insert(2)
	if reused.index != ref.index {
		t.Fatalf("expected slot reuse at index %d, got %d", ref.index, reused.index)
	}
	if _, ok := m.Get(ref); ok {
		t.Fatal("stale ref resolved into the reused slot")
	}
	got, ok := m.Get(reused)
	if !ok || got != 2 {
		t.Fatalf("Get(reused) = %d, %v, want 2, true", got, ok)
	}
}

func TestSlotMapEachSkipsFreed(t *testing.T) {
	m := NewSlotMap[int]()
	a := m.Insert(1)
	_ = m.Insert(2)
	m.Remove(a)

	count := 0
	m.Each(func(ref Ref, v int) { count++ })
	if count != 1 {
		t.Fatalf("Each visited %d slots, want 1", count)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestRefIsZero(t *testing.T) {
	var zero Ref
	if !zero.IsZero() {
		t.Fatal("zero-value Ref.IsZero() = false")
	}
	m := NewSlotMap[int]()
	ref := m.Insert(1)
	if ref.IsZero() {
		t.Fatal("first inserted ref reported as zero")
	}
}
