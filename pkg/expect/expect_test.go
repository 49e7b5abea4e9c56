package expect

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("/bin/bash not available")
	}
}

func TestSpawn(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 5*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	if h.ptmx == nil {
		t.Error("Expected ptmx to be non-nil")
	}
	if h.cmd == nil || h.cmd.Process == nil {
		t.Error("Expected process to be started")
	}
}

func TestSendExpect(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 10*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	// The marker is computed so the echoed command line does not
	// contain the literal we expect, only the command's output does.
	if err := h.SendLine("echo marker-$((40+2))"); err != nil {
		t.Fatalf("SendLine() failed: %v", err)
	}
	if err := h.ExpectExact("marker-42"); err != nil {
		t.Fatalf("ExpectExact() failed: %v", err)
	}
	if !strings.Contains(h.Before(), "echo") {
		t.Errorf("Before() should contain the echoed command, got %q", h.Before())
	}

	if err := h.SendLine("exit"); err != nil {
		t.Fatalf("SendLine(exit) failed: %v", err)
	}
	if err := h.WaitEOF(); err != nil {
		t.Fatalf("WaitEOF() failed: %v", err)
	}
}

func TestExpectTimeout(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	err = h.ExpectExact("this-pattern-never-appears")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestTeeObservesOutput(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 10*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	var tee bytes.Buffer
	h.SetTee(&tee)

	if err := h.SendLine("echo tee-$((50+5))"); err != nil {
		t.Fatalf("SendLine() failed: %v", err)
	}
	if err := h.ExpectExact("tee-55"); err != nil {
		t.Fatalf("ExpectExact() failed: %v", err)
	}
	if !strings.Contains(tee.String(), "tee-55") {
		t.Errorf("tee should observe the stream, got %q", tee.String())
	}

	// Detaching stops mirroring.
	h.SetTee(nil)
	before := tee.Len()
	h.SendLine("echo after-$((60+6))")
	h.ExpectExact("after-66")
	if tee.Len() != before {
		t.Error("detached tee must not receive output")
	}
}

type failingWriter struct{ err error }

func (w *failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestTeeErrorPropagates(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 10*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	wantErr := errors.New("stream aborted")
	h.SetTee(&failingWriter{err: wantErr})

	h.SendLine("echo fail-$((70+7))")
	err = h.ExpectExact("fail-77")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected tee error to surface, got %v", err)
	}
}

func TestLeftoverBufferMatches(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 10*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	// Two markers in one burst; the second expect must match from the
	// leftover buffer without another read.
	if err := h.SendLine("echo first-$((1+1)); echo second-$((2+2))"); err != nil {
		t.Fatalf("SendLine() failed: %v", err)
	}
	if err := h.ExpectExact("first-2"); err != nil {
		t.Fatalf("first ExpectExact() failed: %v", err)
	}
	if err := h.ExpectExact("second-4"); err != nil {
		t.Fatalf("second ExpectExact() failed: %v", err)
	}
}

func TestSetEchoWait(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 5*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	defer h.Close()

	if err := h.SetEcho(false); err != nil {
		t.Fatalf("SetEcho(false) failed: %v", err)
	}
	if !h.WaitNoEcho(time.Second) {
		t.Error("echo still reported enabled after disabling")
	}
	if runtime.GOOS == "linux" && !h.IsEchoDisabled() {
		t.Error("IsEchoDisabled() = false after WaitNoEcho succeeded")
	}

	if err := h.SetEcho(true); err != nil {
		t.Fatalf("SetEcho(true) failed: %v", err)
	}
	if runtime.GOOS == "linux" && h.IsEchoDisabled() {
		t.Error("IsEchoDisabled() = true after re-enabling echo")
	}
}

func TestSpawnShellEnv(t *testing.T) {
	requireBash(t)

	h, err := SpawnShell("/bin/bash", []string{"--norc", "--noprofile"},
		[]string{"BASHPIPE_TEST_MARKER=marker-value"}, 10*time.Second)
	if err != nil {
		t.Fatalf("SpawnShell() failed: %v", err)
	}
	defer h.Close()

	if err := h.SendLine("echo ${BASHPIPE_TEST_MARKER}-ok"); err != nil {
		t.Fatalf("SendLine() failed: %v", err)
	}
	if err := h.ExpectExact("marker-value-ok"); err != nil {
		t.Fatalf("ExpectExact() failed: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	requireBash(t)

	h, err := Spawn("/bin/bash", 5*time.Second)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}

func TestSpawnDefaultsShell(t *testing.T) {
	requireBash(t)

	t.Setenv("SHELL", "")
	h, err := Spawn("", 5*time.Second)
	if err != nil {
		t.Fatalf("Spawn(\"\") failed: %v", err)
	}
	defer h.Close()

	if h.cmd.Path != "/bin/bash" {
		t.Errorf("expected /bin/bash fallback, got %q", h.cmd.Path)
	}
}
