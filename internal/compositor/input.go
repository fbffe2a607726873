package compositor

// KeyState distinguishes a key press from a release, matching the
// wl_keyboard.key key_state enum.
type KeyState int

const (
	KeyReleased KeyState = iota
	KeyPressed
)

// ButtonState distinguishes a pointer button press from a release.
type ButtonState int

const (
	ButtonReleased ButtonState = iota
	ButtonPressed
)

// KeyEvent is a translated keyboard event ready for dispatch to the
// seat's focused surface. Keysym is the client's expected X11/Wayland
// keysym, already mapped from whatever scancode the input collaborator
// reported.
type KeyEvent struct {
	Keysym uint32
	State  KeyState
	Serial uint32
}

// PointerMotionEvent reports absolute pointer motion in session-output
// coordinates, or relative motion (DX, DY only) while the pointer is locked.
type PointerMotionEvent struct {
	X, Y     float64
	DX, DY   float64
	Relative bool
}

// PointerButtonEvent reports a pointer button transition. Button codes
// follow the Linux BTN_* input-event numbering, as wl_pointer.button does.
type PointerButtonEvent struct {
	Button uint32
	State  ButtonState
	Serial uint32
}

// PointerAxisEvent reports scroll/wheel input, matching wl_pointer.axis.
type PointerAxisEvent struct {
	HorizontalDelta float64
	VerticalDelta   float64
}

// Dispatcher translates input events into focus-aware deliveries,
// tracking which surface each event should be delivered to and
// maintaining enter/leave semantics as the pointer crosses surfaces.
type Dispatcher struct {
	c *Compositor
}

// NewDispatcher creates a Dispatcher bound to a Compositor's seat and surface tree.
func NewDispatcher(c *Compositor) *Dispatcher {
	return &Dispatcher{c: c}
}

// HitTest returns the topmost visible surface under point (x, y) in
// session-output coordinates, walking the z-order top to bottom.
func (d *Dispatcher) HitTest(x, y int) (Ref, bool) {
	order := d.c.stack.Order()
	for i := len(order) - 1; i >= 0; i-- {
		ref := order[i]
		s, ok := d.c.surfaces.Get(ref)
		if !ok || !s.Visible || s.Hidden {
			continue
		}
		w, h := s.Current.Width, s.Current.Height
		if w == 0 && h == 0 {
			continue
		}
		if x >= s.PositionX && x < s.PositionX+w && y >= s.PositionY && y < s.PositionY+h {
			return ref, true
		}
	}
	return Ref{}, false
}

// MoveFocus updates pointer focus for a hit-tested surface, returning
// the surfaces that should receive leave and enter events respectively
// (either may be the zero Ref if there was no prior focus or no new one).
func (d *Dispatcher) MoveFocus(next Ref) (leave, enter Ref) {
	prev := d.c.seat.SetPointerFocus(next)
	if prev == next {
		return Ref{}, Ref{}
	}
	return prev, next
}

// SurfaceLocal converts a point in session-output coordinates into a
// surface's local coordinate space, accounting for its position and scale.
func SurfaceLocal(s Surface, x, y float64) (lx, ly float64) {
	scale := float64(s.Scale)
	if scale <= 0 {
		scale = 1
	}
	return (x - float64(s.PositionX)) * scale, (y - float64(s.PositionY)) * scale
}
