package compositor

// CursorImage is the compositor's record of the pointer's current
// appearance: either a client-supplied surface (set_cursor with a
// wl_surface) or a named system shape when the client defers to the
// server's own cursor theme.
type CursorImage struct {
	Hidden     bool
	Shape      string // e.g. "default", "text", "pointer"; empty if Surface is set
	Surface    Ref
	HotX, HotY int
}

// CursorTracker follows the pointer's current image across set_cursor
// requests, separate from the Seat's focus tracking since the cursor
// surface is not a focus target itself.
type CursorTracker struct {
	current CursorImage
}

// SetShape switches to a named system cursor shape, clearing any
// client surface previously in use.
func (t *CursorTracker) SetShape(shape string) {
	t.current = CursorImage{Shape: shape}
}

// SetSurface switches to a client-supplied cursor surface with the
// given hotspot, as wl_pointer.set_cursor(surface, hotspot_x, hotspot_y) does.
func (t *CursorTracker) SetSurface(ref Ref, hotX, hotY int) {
	t.current = CursorImage{Surface: ref, HotX: hotX, HotY: hotY}
}

// Hide marks the cursor hidden, as set_cursor(NULL) does.
func (t *CursorTracker) Hide() {
	t.current = CursorImage{Hidden: true}
}

// Current returns the tracker's current cursor image.
func (t *CursorTracker) Current() CursorImage { return t.current }
