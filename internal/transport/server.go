package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/mmserver/mmserverd/internal/appcatalog"
	"github.com/mmserver/mmserverd/internal/session"
)

// Server accepts QUIC connections and dispatches each to its own
// connection handler, which in turn negotiates a session via the
// control stream and fans media out through an Attachment.
type Server struct {
	log      *slog.Logger
	catalog  *appcatalog.Catalog
	sessions *session.Manager

	listener *quic.Listener

	// maxConnections caps concurrent attachments per §4.3's
	// max_connections (the name is the wire protocol's, but the limit
	// is on attachments, not QUIC connections); <=0 means unbounded.
	maxConnections    int32
	activeAttachments atomic.Int32

	// StartSession launches a session when an Attach finds no
	// reattachable one; injected so tests can substitute lightweight
	// stubs instead of the real launcher.
	StartSession SessionStarter
}

// SessionStarter launches (or looks up) the session a client's Attach
// request resolves to, returning the Session to attach against.
type SessionStarter func(ctx context.Context, app *appcatalog.Application, params session.DisplayParams) (*session.Session, error)

// Config bundles the parameters needed to start a Server.
type Config struct {
	Bind         string
	TLSConfig    *tls.Config
	Catalog      *appcatalog.Catalog
	Sessions     *session.Manager
	StartSession SessionStarter
	Log          *slog.Logger

	// MaxConnections bounds concurrent attachments across all
	// connections; <=0 means unbounded.
	MaxConnections int

	EnableDatagrams bool
}

// New creates a Server from cfg without binding anything; Listen or
// ListenOn must be called before Run (allowing the caller to also
// support systemd socket activation without this package depending on
// it). New reads only Catalog, Sessions, StartSession, Log and
// MaxConnections; Bind, TLSConfig and EnableDatagrams are not used.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:            log.With("component", "transport"),
		catalog:        cfg.Catalog,
		sessions:       cfg.Sessions,
		maxConnections: int32(cfg.MaxConnections),
		StartSession:   cfg.StartSession,
	}
}

// Listen opens the QUIC listener on addr using tlsConf.
func (s *Server) Listen(addr string, tlsConf *tls.Config, enableDatagrams bool) error {
	qconf := &quic.Config{EnableDatagrams: enableDatagrams}
	ln, err := quic.ListenAddr(addr, tlsConf, qconf)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Info("listening", "addr", addr)
	return nil
}

// ListenOn adopts an already-bound UDP listener, used for systemd
// socket activation (LISTEN_FDS) where the caller owns fd 3 onward.
func (s *Server) ListenOn(ln *quic.Listener) {
	s.listener = ln
}

// Addr returns the listener's local address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts connections until ctx is cancelled, handling each on its
// own goroutine under an errgroup so a single connection's panic path
// (via recover in handleConnection) can never take down the listener.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("transport: Listen must be called before Run")
	}
	defer s.listener.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.listener.Close()
	})

	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return g.Wait()
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		g.Go(func() error {
			s.handleConnection(ctx, conn)
			return nil
		})
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *quic.Conn) {
	log := s.log.With("remote", conn.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("connection handler panicked", "panic", r)
			conn.CloseWithError(0, "internal error")
		}
	}()

	h := &connHandler{
		log:               log,
		conn:              conn,
		catalog:           s.catalog,
		sessions:          s.sessions,
		startSession:      s.StartSession,
		maxConnections:    s.maxConnections,
		activeAttachments: &s.activeAttachments,
	}
	if err := h.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Info("connection closed", "error", err)
	}
}
