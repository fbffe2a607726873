// Package launcher implements transport.SessionStarter: given a catalog
// application and negotiated display parameters, it prepares the
// application's home directory, starts its sandboxed container, and
// wires a compositor/GPU pipeline pair that publishes frames into the
// new session.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mmserver/mmserverd/internal/appcatalog"
	"github.com/mmserver/mmserverd/internal/compositor"
	"github.com/mmserver/mmserverd/internal/containerhost"
	"github.com/mmserver/mmserverd/internal/gpu"
	"github.com/mmserver/mmserverd/internal/media"
	"github.com/mmserver/mmserverd/internal/metrics"
	"github.com/mmserver/mmserverd/internal/session"
)

// defaultPreset is the quality preset used when an application doesn't
// override it; 5 lands mid-curve on SelectRateControlCurve's VBR ramp.
const defaultPreset = 5

// maxConcurrentLaunches bounds how many containers can be mid-start at
// once: bwrap namespace setup and the application's own startup are
// both bursty on CPU and disk, so a pile of simultaneous Attach
// requests for cold applications shouldn't be allowed to stampede the
// host the way an unbounded fan-out would.
const maxConcurrentLaunches = 8

// Launcher starts sessions on behalf of the transport server, owning
// the collaborators (container host, state directory, metrics) every
// launch needs but that don't belong on appcatalog.Application itself.
type Launcher struct {
	host      *containerhost.Host
	sessions  *session.Manager
	metrics   *metrics.Registry
	log       *slog.Logger
	stateRoot string // parent of per-session home/runtime directories

	// enableGPU threads the host's render-node availability into every
	// container's bwrap args; false on hosts with no /dev/dri (CI, the
	// software fallback path).
	enableGPU bool

	launchSem *semaphore.Weighted

	mu      sync.Mutex
	handles map[string]*launchedContainer // by session ID
}

// launchedContainer tracks the one extra bit superviseContainer needs
// that Handle itself doesn't carry: whether the exit was requested by
// StopSession (a reap) rather than happening on its own.
type launchedContainer struct {
	handle *containerhost.Handle
	reaped bool
}

// Config bundles a Launcher's fixed parameters.
type Config struct {
	Host      *containerhost.Host
	Sessions  *session.Manager
	Metrics   *metrics.Registry
	StateRoot string // e.g. /var/lib/mmserverd/sessions; created if missing
	EnableGPU bool
	Log       *slog.Logger
}

// New creates a Launcher.
func New(cfg Config) *Launcher {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	stateRoot := cfg.StateRoot
	if stateRoot == "" {
		stateRoot = filepath.Join(os.TempDir(), "mmserverd-sessions")
	}
	return &Launcher{
		host:      cfg.Host,
		sessions:  cfg.Sessions,
		metrics:   cfg.Metrics,
		log:       log.With("component", "launcher"),
		stateRoot: stateRoot,
		enableGPU: cfg.EnableGPU,
		launchSem: semaphore.NewWeighted(maxConcurrentLaunches),
		handles:   make(map[string]*launchedContainer),
	}
}

// Start implements transport.SessionStarter: it satisfies that
// function type structurally without importing the transport package,
// keeping the dependency edge pointing from transport to launcher and
// not back.
func (l *Launcher) Start(ctx context.Context, app *appcatalog.Application, params session.DisplayParams) (*session.Session, error) {
	if err := l.launchSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("launcher: waiting for a launch slot: %w", err)
	}
	defer l.launchSem.Release(1)

	sessLog := l.log.With("application", app.Name)
	sess := session.New(app.Name, params, app.SessionTimeout, sessLog)

	homeDir, err := l.resolveHomeDir(app, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("launcher: resolve home dir: %w", err)
	}
	runtimeDir := filepath.Join(l.stateRoot, "runtime", sess.ID)
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("launcher: create runtime dir: %w", err)
	}

	profile := media.ProfileHD
	if params.HDR {
		profile = media.ProfileHDR10
	}

	device := gpu.NewSoftwareDevice(params.Width, params.Height)
	curve := gpu.SelectRateControlCurve(defaultPreset, params.Width, params.Height, 1)
	pipeline := gpu.New(gpu.Config{
		Device:    device,
		Sink:      sess,
		Codec:     params.Codec,
		Profile:   profile,
		FECRatios: []float64{0.1},
		Curve:     curve,
		Log:       sessLog,
	})

	comp := compositor.New(compositor.Config{
		Framerate: params.RefreshHz,
		Renderer:  pipeline,
		Scale:     compositor.ScalePolicy{Force1x: app.Force1xScale},
		Log:       sessLog,
	})
	sess.SetRefreshHandler(func() {
		comp.RequestRefresh()
		pipeline.Renegotiate()
	})

	sockets := containerhost.Sockets{
		WaylandDisplay: filepath.Join(runtimeDir, "wayland-0"),
		AudioSink:      filepath.Join(runtimeDir, "pulse"),
	}
	if app.XWayland {
		sockets.X11Display = filepath.Join(runtimeDir, "X0")
	}

	handle, err := l.host.Start(ctx, containerhost.Config{
		Command:   app.Command,
		Env:       app.Environment,
		HomeDir:   homeDir,
		Sockets:   sockets,
		EnableGPU: l.enableGPU,
		Logger:    sessLog,
	})
	if err != nil {
		return nil, fmt.Errorf("launcher: start container: %w", err)
	}

	compCtx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		if err := comp.Run(compCtx); err != nil && compCtx.Err() == nil {
			l.log.Warn("compositor stopped", "session", sess.ID, "error", err)
		}
	}()
	lc := &launchedContainer{handle: handle}
	l.mu.Lock()
	l.handles[sess.ID] = lc
	l.mu.Unlock()

	go l.superviseContainer(lc, sess, cancel)

	sess.MarkReady()
	if l.metrics != nil {
		l.metrics.SessionStarted()
	}
	return sess, nil
}

// superviseContainer tears the session's compositor down once its
// container exits, whether cleanly or not, and records the outcome.
// This is the unexpected-exit path; StopSession covers the
// operator/idle-reap-initiated one.
func (l *Launcher) superviseContainer(lc *launchedContainer, sess *session.Session, stopCompositor context.CancelFunc) {
	err := lc.handle.Wait()
	stopCompositor()
	sess.BeginTerminating()
	sess.EndAttachments("container exited")
	sess.MarkGone()

	l.mu.Lock()
	reaped := lc.reaped
	delete(l.handles, sess.ID)
	l.mu.Unlock()

	if l.sessions != nil {
		l.sessions.Remove(sess.ID)
	}
	if l.metrics != nil {
		l.metrics.SessionEnded(reaped)
	}

	if code, ok := containerhost.IsExitError(err); ok && !reaped {
		l.log.Warn("container exited non-zero", "session", sess.ID, "code", code)
	} else if err != nil && !reaped {
		l.log.Warn("container wait failed", "session", sess.ID, "error", err)
	}
}

// StopSession signals the session's container to exit, used as the
// session manager's idle-reap callback. superviseContainer observes
// the resulting exit and records it as a reap rather than a crash.
func (l *Launcher) StopSession(sess *session.Session) {
	l.mu.Lock()
	lc := l.handles[sess.ID]
	if lc != nil {
		lc.reaped = true
	}
	l.mu.Unlock()
	if lc == nil {
		return
	}
	if err := lc.handle.Stop(); err != nil {
		l.log.Warn("stop container", "session", sess.ID, "error", err)
	}
}

// resolveHomeDir picks the host directory bind-mounted as the
// container's $HOME, honoring the application's isolation policy:
// a fresh tmp directory (TmpHome), a named directory shared across
// every session of a given SharedHomeName, or a per-session directory
// under the state root otherwise.
func (l *Launcher) resolveHomeDir(app *appcatalog.Application, sessionID string) (string, error) {
	var dir string
	switch {
	case app.TmpHome:
		dir = filepath.Join(l.stateRoot, "tmphome", sessionID)
	case app.SharedHomeName != "":
		dir = filepath.Join(l.stateRoot, "shared-homes", app.SharedHomeName)
	case app.IsolateHome:
		dir = filepath.Join(l.stateRoot, "homes", app.Name, sessionID)
	default:
		dir = filepath.Join(l.stateRoot, "homes", app.Name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
