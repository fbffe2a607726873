// Package compositor implements the per-session Wayland-style surface
// tree and tick-driven render loop that feeds the GPU frame pipeline.
// It models surfaces, buffers, damage, and z-order without depending on
// a literal Wayland wire-protocol implementation; input and the wire
// protocol live in neighboring files, while the render pipeline itself
// is reached through the Renderer interface so this package stays
// testable without a GPU.
package compositor

import (
	"context"
	"log/slog"
	"time"
)

// Renderer drives the GPU frame pipeline: composite, colour-convert,
// encode, and packetise a snapshot of the surface tree into a frame. It
// is satisfied by the GPU pipeline package; tests substitute a stub.
type Renderer interface {
	Render(ctx context.Context, frame RenderInput) error
}

// RenderInput is the compositor's output for one tick: the ordered,
// visible surfaces a Renderer should composite, plus whether any of
// them changed since the last tick.
type RenderInput struct {
	Surfaces []RenderSurface
	Damaged  bool
	Forced   bool      // true when a refresh was explicitly requested
	Tick     time.Time // wall-clock time of the tick that produced this input
}

// RenderSurface is a read-only snapshot of one surface's state, handed
// to the Renderer; it is decoupled from Surface so the renderer cannot
// mutate compositor state.
type RenderSurface struct {
	Ref       Ref
	Buffer    Buffer
	Damage    []Rect
	Transform Transform
	Scale     int
	X, Y      int
}

// FrameDoneFunc is invoked once per tick for every surface that had a
// buffer committed and consumed this tick, mirroring
// wl_surface.frame's completion callback.
type FrameDoneFunc func(ref Ref, ts time.Time)

// Event is a client request applied to the surface tree before a tick
// renders it. The compositor itself does not parse the Wayland wire
// protocol; callers translate wire requests into Events.
type Event interface{ apply(c *Compositor) }

// CreateSurfaceEvent allocates a new surface and reports its Ref via Result.
type CreateSurfaceEvent struct {
	WaylandID uint32
	Result    chan<- Ref
}

func (e CreateSurfaceEvent) apply(c *Compositor) {
	ref := c.surfaces.Insert(Surface{WaylandID: e.WaylandID})
	if e.Result != nil {
		e.Result <- ref
	}
}

// DestroySurfaceEvent removes a surface and its stack entry.
type DestroySurfaceEvent struct{ Ref Ref }

func (e DestroySurfaceEvent) apply(c *Compositor) {
	c.surfaces.Remove(e.Ref)
	c.stack.Remove(e.Ref)
	if c.seat.KeyboardFocus == e.Ref {
		c.seat.SetKeyboardFocus(Ref{})
	}
	if c.seat.PointerFocus == e.Ref {
		c.seat.SetPointerFocus(Ref{})
	}
}

// SetRoleEvent assigns a role and parent to a surface (wl_surface gains
// a role exactly once; xdg_popup/subsurface also set Parent).
type SetRoleEvent struct {
	Ref    Ref
	Role   Role
	Parent Ref
}

func (e SetRoleEvent) apply(c *Compositor) {
	if s, ok := c.surfaces.GetMut(e.Ref); ok {
		s.Role = e.Role
		s.Parent = e.Parent
	}
}

// AttachEvent stages a buffer as a surface's pending state, as
// wl_surface.attach does before commit.
type AttachEvent struct {
	Ref    Ref
	Buffer Buffer
}

func (e AttachEvent) apply(c *Compositor) {
	if s, ok := c.surfaces.GetMut(e.Ref); ok {
		s.Pending = e.Buffer
		s.HasPending = true
	}
}

// DamageEvent records client-reported damage against a surface's pending state.
type DamageEvent struct {
	Ref  Ref
	Rect Rect
}

func (e DamageEvent) apply(c *Compositor) {
	if s, ok := c.surfaces.GetMut(e.Ref); ok {
		s.AddDamage(e.Rect)
	}
}

// MoveEvent repositions a surface in its parent's coordinate space.
type MoveEvent struct {
	Ref  Ref
	X, Y int
}

func (e MoveEvent) apply(c *Compositor) {
	if s, ok := c.surfaces.GetMut(e.Ref); ok {
		s.PositionX, s.PositionY = e.X, e.Y
	}
}

// RaiseEvent moves a surface to the top of the z-order.
type RaiseEvent struct{ Ref Ref }

func (e RaiseEvent) apply(c *Compositor) { c.stack.Raise(e.Ref) }

// SetVisibleEvent toggles whether a surface participates in compositing
// (e.g. a minimized toplevel, or a cursor surface hidden by the client).
type SetVisibleEvent struct {
	Ref     Ref
	Visible bool
}

func (e SetVisibleEvent) apply(c *Compositor) {
	if s, ok := c.surfaces.GetMut(e.Ref); ok {
		s.Visible = e.Visible
	}
}

// Compositor owns one session's surface tree and drives it at a fixed
// tick rate: dispatch pending events, commit buffers, render if
// anything changed, and fire frame-done callbacks.
type Compositor struct {
	log *slog.Logger

	surfaces *SlotMap[Surface]
	stack    Stack
	seat     *Seat
	serials  SerialAllocator
	scale    ScalePolicy

	framerate int
	renderer  Renderer
	onFrame   FrameDoneFunc

	events chan Event

	// forceRefresh is set by RequestRefresh and cleared after the next
	// tick renders regardless of whether any surface changed, covering
	// e.g. a newly attached viewer that needs a keyframe immediately.
	forceRefresh bool
}

// Config bundles the parameters a session supplies when starting its compositor.
type Config struct {
	Framerate int
	Renderer  Renderer
	OnFrame   FrameDoneFunc
	Scale     ScalePolicy
	Log       *slog.Logger
}

// New creates a Compositor with an empty surface tree.
func New(cfg Config) *Compositor {
	if cfg.Framerate <= 0 {
		cfg.Framerate = 60
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Compositor{
		log:       log,
		surfaces:  NewSlotMap[Surface](),
		seat:      NewSeat(),
		scale:     cfg.Scale,
		framerate: cfg.Framerate,
		renderer:  cfg.Renderer,
		onFrame:   cfg.OnFrame,
		events:    make(chan Event, 256),
	}
}

// Submit enqueues a client event for application on the next tick. It
// never blocks past the channel's buffer; a caller that floods events
// faster than the tick rate drains will itself back up, which is the
// desired pressure point since a session with no attachment still
// ticks at Framerate.
func (c *Compositor) Submit(ev Event) {
	c.events <- ev
}

// refreshEvent forces the next tick to render even if no surface
// changed, used when a new attachment needs a keyframe. It is applied
// on the event-loop goroutine like any other Event so forceRefresh
// never needs its own synchronization.
type refreshEvent struct{}

func (refreshEvent) apply(c *Compositor) { c.forceRefresh = true }

// RequestRefresh forces the next tick to render even if no surface
// changed, used when a new attachment needs a keyframe.
func (c *Compositor) RequestRefresh() {
	c.Submit(refreshEvent{})
}

// Seat exposes the session's input focus and gamepad state.
func (c *Compositor) Seat() *Seat { return c.seat }

// Serials exposes the session's serial allocator for input dispatch.
func (c *Compositor) Serials() *SerialAllocator { return &c.serials }

// Surfaces exposes the surface tree for read-only queries (hit-testing,
// cursor image lookups) that don't belong on the hot Event path.
func (c *Compositor) Surfaces() *SlotMap[Surface] { return c.surfaces }

// Run ticks the compositor at Framerate until ctx is cancelled.
func (c *Compositor) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(c.framerate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			ev.apply(c)
		case now := <-ticker.C:
			c.drainEvents()
			c.tick(ctx, now)
		}
	}
}

// drainEvents applies any events queued since the last tick without
// waiting for the next ticker fire, so input is never delayed by up to
// a full frame interval once a tick is already due.
func (c *Compositor) drainEvents() {
	for {
		select {
		case ev := <-c.events:
			ev.apply(c)
		default:
			return
		}
	}
}

func (c *Compositor) tick(ctx context.Context, now time.Time) {
	var committed []Ref
	damaged := false

	c.surfaces.Each(func(ref Ref, s Surface) {
		if s.HasPending {
			committed = append(committed, ref)
			damaged = true
		}
	})

	for _, ref := range committed {
		if s, ok := c.surfaces.GetMut(ref); ok {
			s.Commit()
		}
	}

	if !damaged && !c.forceRefresh {
		return
	}
	forced := c.forceRefresh
	c.forceRefresh = false

	input := c.buildRenderInput(damaged, forced, now)
	if c.renderer != nil {
		if err := c.renderer.Render(ctx, input); err != nil {
			c.log.Error("render failed", "error", err)
		}
	}

	for _, ref := range committed {
		if s, ok := c.surfaces.GetMut(ref); ok {
			s.ClearDamage()
		}
		if c.onFrame != nil {
			c.onFrame(ref, now)
		}
	}
}

func (c *Compositor) buildRenderInput(damaged, forced bool, now time.Time) RenderInput {
	input := RenderInput{Damaged: damaged, Forced: forced, Tick: now}
	for _, ref := range c.stack.Order() {
		s, ok := c.surfaces.Get(ref)
		if !ok || !s.Visible || s.Hidden {
			continue
		}
		outputScale, _, _ := c.scale.Resolve()
		scale := s.Scale
		if scale <= 0 {
			scale = outputScale
		}
		input.Surfaces = append(input.Surfaces, RenderSurface{
			Ref:       ref,
			Buffer:    s.Current,
			Damage:    s.Damage,
			Transform: s.Transform,
			Scale:     scale,
			X:         s.PositionX,
			Y:         s.PositionY,
		})
	}
	return input
}
