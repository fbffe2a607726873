package compositor

// Seat bundles the keyboard/pointer/gamepad capabilities advertised to
// Wayland clients and tracks which surface currently has keyboard focus
// and pointer focus.
type Seat struct {
	KeyboardFocus Ref
	PointerFocus  Ref

	PointerLocked bool
	// PointerLockSurface is the surface the pointer was locked to;
	// relative-motion reporting targets this surface until unlocked.
	PointerLockSurface Ref

	Modifiers ModifierState

	Gamepads map[int]*GamepadState // slot -> state, "permanent" slots survive disconnect
}

// ModifierState tracks which keyboard modifiers are currently held.
type ModifierState struct {
	Shift, Ctrl, Alt, Super bool
}

// GamepadState is the compositor's view of one emulated gamepad slot.
type GamepadState struct {
	Connected bool
	Buttons   uint32 // bitmask
	Axes      [6]float32
}

// NewSeat creates a Seat with no focus and no gamepads bound.
func NewSeat() *Seat {
	return &Seat{Gamepads: make(map[int]*GamepadState)}
}

// SetKeyboardFocus updates keyboard focus, returning the previously
// focused Ref so the caller can emit a leave event before the new enter.
func (s *Seat) SetKeyboardFocus(ref Ref) Ref {
	prev := s.KeyboardFocus
	s.KeyboardFocus = ref
	return prev
}

// SetPointerFocus updates pointer focus, returning the previous Ref.
func (s *Seat) SetPointerFocus(ref Ref) Ref {
	prev := s.PointerFocus
	s.PointerFocus = ref
	return prev
}

// LockPointer activates pointer lock against surface, switching the seat
// to relative-motion reporting. Callers are expected to have already
// warped the pointer to the hotspot before calling LockPointer, so the
// warp itself never leaks out as a spurious relative-motion event.
func (s *Seat) LockPointer(surface Ref) {
	s.PointerLocked = true
	s.PointerLockSurface = surface
}

// UnlockPointer deactivates pointer lock, returning to absolute reporting.
func (s *Seat) UnlockPointer() {
	s.PointerLocked = false
	s.PointerLockSurface = Ref{}
}

// BindGamepad creates or reconnects a gamepad slot. Permanent slots
// remain allocated across disconnects; this just marks Connected without
// discarding prior Axes/Buttons state.
func (s *Seat) BindGamepad(slot int) *GamepadState {
	gp, ok := s.Gamepads[slot]
	if !ok {
		gp = &GamepadState{}
		s.Gamepads[slot] = gp
	}
	gp.Connected = true
	return gp
}

// UnbindGamepad marks a slot disconnected without removing it, so a
// "permanent" slot's identity survives a later reconnect.
func (s *Seat) UnbindGamepad(slot int) {
	if gp, ok := s.Gamepads[slot]; ok {
		gp.Connected = false
	}
}
