package containerhost

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func TestBuildBwrapArgsIncludesSocketBinds(t *testing.T) {
	args, err := buildBwrapArgs(Config{
		Command: []string{"/usr/bin/app"},
		HomeDir: "/tmp/home",
		Sockets: Sockets{
			WaylandDisplay: "/run/user/1000/wayland-0",
			AudioSink:      "/run/user/1000/pulse/native",
		},
	})
	if err != nil {
		t.Fatalf("buildBwrapArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "wayland-0") {
		t.Errorf("expected Wayland socket bind in args, got: %s", joined)
	}
	if !strings.Contains(joined, "WAYLAND_DISPLAY") {
		t.Errorf("expected WAYLAND_DISPLAY setenv, got: %s", joined)
	}
	if !strings.Contains(joined, "native") {
		t.Errorf("expected audio sink bind in args, got: %s", joined)
	}
	if strings.Contains(joined, "--setenv DISPLAY ") {
		t.Errorf("did not request X11, so DISPLAY should not be set: %s", joined)
	}
}

func TestBuildBwrapArgsEnablesGPU(t *testing.T) {
	args, err := buildBwrapArgs(Config{
		Command:   []string{"/usr/bin/app"},
		HomeDir:   "/tmp/home",
		EnableGPU: true,
	})
	if err != nil {
		t.Fatalf("buildBwrapArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "/dev/dri") {
		t.Errorf("expected /dev/dri dev-bind when GPU enabled, got: %s", joined)
	}
}

func TestStartRejectsEmptyCommand(t *testing.T) {
	h := New(nil)
	_, err := h.Start(context.Background(), Config{HomeDir: "/tmp/home"})
	if err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestStartRejectsMissingHomeDir(t *testing.T) {
	h := New(nil)
	_, err := h.Start(context.Background(), Config{Command: []string{"/bin/true"}})
	if err == nil {
		t.Fatal("expected error for missing home directory")
	}
}

func TestStartRunsRealContainer(t *testing.T) {
	if _, err := exec.LookPath("bwrap"); err != nil {
		t.Skip("bwrap not available in test environment")
	}

	h := New(nil)
	handle, err := h.Start(context.Background(), Config{
		Command: []string{"/bin/true"},
		HomeDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := handle.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !handle.Done() {
		t.Error("expected Done() to report true after Wait returns")
	}
}

func TestIsExitErrorUnwrapsCode(t *testing.T) {
	code, ok := IsExitError(&ExitError{Code: 7})
	if !ok || code != 7 {
		t.Fatalf("IsExitError = (%d, %v), want (7, true)", code, ok)
	}
	if _, ok := IsExitError(nil); ok {
		t.Error("IsExitError(nil) should be false")
	}
}
