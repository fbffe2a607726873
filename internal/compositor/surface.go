package compositor

// Role distinguishes the Wayland surface roles this compositor tracks.
type Role int

const (
	RoleNone Role = iota
	RoleToplevel
	RolePopup
	RoleSubsurface
	RoleCursor
)

// BufferKind distinguishes the two buffer transport mechanisms
// wp_linux_dmabuf and the plain shm fallback both deliver.
type BufferKind int

const (
	BufferNone BufferKind = iota
	BufferDMA
	BufferSHM
)

// Buffer is a client-committed surface buffer, imported as a Vulkan image
// for dmabuf buffers or copied for shm buffers.
type Buffer struct {
	Kind      BufferKind
	Width     int
	Height    int
	Format    string // fourcc for dmabuf, shm format name for shm
	DMAFDs    []int  // dmabuf plane file descriptors, explicit-sync pinned
	SyncPoint uint64 // wp_linux_drm_syncobj_timeline point, 0 if implicit sync
	SHMData   []byte
}

// Rect is an axis-aligned rectangle in surface-local coordinates.
type Rect struct{ X, Y, W, H int }

// Transform is one of the eight Wayland buffer transforms (rotation +
// optional flip); only Normal and Rotated180 are modelled precisely since
// remote-desktop clients rarely request the others.
type Transform int

const (
	TransformNormal Transform = iota
	TransformRotated90
	TransformRotated180
	TransformRotated270
	TransformFlipped
)

// Surface is the compositor's record of one Wayland surface: its current
// and pending buffers, damage, transform/scale, and tree position. It is
// stored in a SlotMap keyed by Ref so that parent/subsurface
// back-references survive surface destruction without dangling.
type Surface struct {
	WaylandID uint32
	Role      Role
	Parent    Ref // zero Ref if top-level / no parent

	Current    Buffer
	Pending    Buffer
	HasPending bool

	Damage    []Rect
	Transform Transform
	Scale     int // wp_viewporter / fractional-scale, rounded per force_1x_scale

	// PositionX/Y places this surface (or subsurface) in its parent's
	// coordinate space; toplevels are positioned in session-output space.
	PositionX, PositionY int

	Visible bool
	Hidden  bool // cursor surfaces hidden by the client via set_cursor(NULL)
}

// Commit promotes Pending to Current, as the compositor tick does for
// every surface with a pending commit. Commit itself clears Pending and
// HasPending, matching Wayland's single-buffered commit semantics; it is
// a no-op when nothing is pending.
func (s *Surface) Commit() {
	if !s.HasPending {
		return
	}
	s.Current = s.Pending
	s.Pending = Buffer{}
	s.HasPending = false
}

// AddDamage merges a damaged rectangle into the surface's pending damage
// region, reported by the client via wl_surface.damage.
func (s *Surface) AddDamage(r Rect) {
	s.Damage = append(s.Damage, r)
}

// ClearDamage resets the damage region after a frame has consumed it.
func (s *Surface) ClearDamage() {
	s.Damage = s.Damage[:0]
}
