// mmserverd is the headless remote-desktop server: it accepts QUIC
// attachments, launches sandboxed application containers on demand,
// and streams their composited output back to clients.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mmserver/mmserverd/certs"
	"github.com/mmserver/mmserverd/internal/bugreport"
	"github.com/mmserver/mmserverd/internal/config"
	"github.com/mmserver/mmserverd/internal/containerhost"
	"github.com/mmserver/mmserverd/internal/launcher"
	"github.com/mmserver/mmserverd/internal/metrics"
	"github.com/mmserver/mmserverd/internal/session"
	"github.com/mmserver/mmserverd/internal/statusui"
	"github.com/mmserver/mmserverd/internal/transport"
)

var version = "dev"

// Exit codes, documented for operators running mmserverd under a
// process supervisor: 1 is a configuration problem, 2 is a startup
// failure once configuration is valid, 3 is a run-time server error.
const (
	exitConfigError  = 1
	exitStartupError = 2
	exitServerError  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		bind       string
		mgmtBind   string
		stateRoot  string
		logLevel   string
		enableGPU  bool
		bugReport  string
		showHelp   bool
	)

	flagSet := pflag.NewFlagSet("mmserverd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "/etc/mmserverd/config.json", "path to the server configuration file")
	flagSet.StringVar(&bind, "bind", "", "QUIC listen address, overriding the config file's server.bind")
	flagSet.StringVar(&mgmtBind, "mgmt-bind", "127.0.0.1:9090", "management HTTP address (metrics, session list)")
	flagSet.StringVar(&stateRoot, "state-dir", "/var/lib/mmserverd", "directory for per-session home/runtime state")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&enableGPU, "enable-gpu", false, "bind-mount /dev/dri into sandboxed containers")
	flagSet.StringVar(&bugReport, "bug-report", "", "fetch a bug report archive from a running instance's management API and write it to this path, then exit")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("mmserverd " + version)
		return 0
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	if showHelp {
		printHelp(flagSet)
		return 0
	}

	level := parseLogLevel(logLevel)
	ring := bugreport.NewRingHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}), 500)
	log := slog.New(ring)
	slog.SetDefault(log)

	if bugReport != "" {
		return fetchBugReport(log, mgmtBind, bugReport)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load config", "path", configPath, "error", err)
		return exitConfigError
	}
	if bind != "" {
		cfg.Server.Bind = bind
	}
	if cfg.Server.Bind == "" {
		log.Error("no bind address: set server.bind in the config file or pass --bind")
		return exitConfigError
	}

	tlsConf, certInfo, err := resolveTLS(cfg.Server, log)
	if err != nil {
		log.Error("failed to resolve TLS certificate", "error", err)
		return exitStartupError
	}
	if certInfo != nil {
		log.Info("using self-signed certificate", "fingerprint", certInfo.FingerprintBase64(), "expires", certInfo.NotAfter.Format(time.RFC3339))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	reg := metrics.New()
	sessions := session.NewManager(log)
	launch := launcher.New(launcher.Config{
		Host:      containerhost.New(log),
		Sessions:  sessions,
		Metrics:   reg,
		StateRoot: stateRoot,
		EnableGPU: enableGPU,
		Log:       log,
	})

	srv := transport.New(transport.Config{
		Catalog:        cfg.Catalog,
		Sessions:       sessions,
		StartSession:   launch.Start,
		Log:            log,
		MaxConnections: cfg.Server.MaxConnections,
	})
	if err := srv.Listen(cfg.Server.Bind, tlsConf, false); err != nil {
		log.Error("failed to start transport listener", "error", err)
		return exitStartupError
	}

	mgmtSrv := newManagementServer(mgmtBind, reg, sessions, ring, configPath, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		return sessions.ReapIdle(ctx, func(s *session.Session) { launch.StopSession(s) })
	})
	g.Go(func() error {
		log.Info("management API listening", "addr", mgmtBind)
		if err := mgmtSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("management API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return mgmtSrv.Shutdown(shutdownCtx)
	})

	log.Info("mmserverd starting", "version", version, "bind", cfg.Server.Bind, "mgmt_bind", mgmtBind)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("server error", "error", err)
		return exitServerError
	}
	return 0
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mmserverd — headless multi-tenant application streaming server.

Usage:
  mmserverd [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveTLS loads an operator-supplied certificate, or generates and
// returns a self-signed one when none is configured and the bind
// address is private; a self-signed cert on a public bind is rejected
// since clients have no way to pin it out of band in that case.
func resolveTLS(sc config.ServerConfig, log *slog.Logger) (*tls.Config, *certs.CertInfo, error) {
	if sc.TLSCert != "" && sc.TLSKey != "" {
		info, err := certs.Load(sc.TLSCert, sc.TLSKey)
		if err != nil {
			return nil, nil, err
		}
		return &tls.Config{Certificates: []tls.Certificate{info.TLSCert}, NextProtos: []string{"mmserverd"}}, nil, nil
	}

	host, _, err := net.SplitHostPort(sc.Bind)
	if err != nil {
		host = sc.Bind
	}
	if !certs.IsPrivate(host) {
		return nil, nil, fmt.Errorf("server.bind %q is not a private address: tls_cert/tls_key are required", sc.Bind)
	}

	log.Warn("no tls_cert/tls_key configured on a private bind; generating a self-signed certificate")
	info, err := certs.Generate(0)
	if err != nil {
		return nil, nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{info.TLSCert}, NextProtos: []string{"mmserverd"}}, info, nil
}

// fetchBugReport pulls a bug report archive from a running instance's
// management API, run as a one-shot invocation against the daemon
// rather than in-process, since a bug report is only useful describing
// a server that is actually up.
func fetchBugReport(log *slog.Logger, mgmtBind, outPath string) int {
	resp, err := http.Get(fmt.Sprintf("http://%s/debug/bugreport", mgmtBind))
	if err != nil {
		log.Error("failed to reach management API", "addr", mgmtBind, "error", err)
		return exitStartupError
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Error("management API returned an error", "status", resp.Status)
		return exitStartupError
	}

	f, err := os.Create(outPath)
	if err != nil {
		log.Error("failed to create bug report file", "path", outPath, "error", err)
		return exitStartupError
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		log.Error("failed to write bug report", "error", err)
		return exitStartupError
	}
	log.Info("bug report written", "path", outPath)
	return 0
}

func newManagementServer(addr string, reg *metrics.Registry, sessions *session.Manager, ring *bugreport.RingHandler, configPath string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		summaries, err := statusui.LocalFetcher(sessions)()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summaries); err != nil {
			log.Warn("encode sessions response", "error", err)
		}
	})
	mux.HandleFunc("/debug/bugreport", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", `attachment; filename="mmserverd-bugreport.tar.gz"`)
		archive := bugreport.NewWriter(w)
		collector := bugreport.NewCollector(sessions, ring, configPath)
		if err := collector.WriteTo(archive); err != nil {
			log.Warn("collect bug report", "error", err)
			return
		}
		if err := archive.Close(); err != nil {
			log.Warn("close bug report archive", "error", err)
		}
	})
	return &http.Server{Addr: addr, Handler: mux}
}
