// Package expect wraps a shell subprocess running in a pseudo-terminal
// with line-oriented send/expect semantics: send a line, block until a
// pattern shows up in the output, and read back the text captured in
// between. Everything read from the PTY can be mirrored to a tee writer
// so an output pipeline observes the stream as it arrives.
package expect

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ErrTimeout is returned when an expect call does not match its
// pattern within the handle's timeout.
var ErrTimeout = errors.New("timeout waiting for expected pattern")

// ErrEOF is returned when the subprocess output ends before an expect
// pattern matched.
var ErrEOF = errors.New("end of output before expected pattern")

// Handle owns a shell subprocess attached to a PTY.
type Handle struct {
	ptmx    *os.File
	cmd     *exec.Cmd
	timeout time.Duration

	mu     sync.Mutex
	tee    io.Writer
	buf    []byte
	before string
	waited bool
	closed bool
}

// Spawn starts shell in a new PTY. A timeout of zero disables the
// expect deadline.
func Spawn(shell string, timeout time.Duration) (*Handle, error) {
	return SpawnShell(shell, nil, nil, timeout)
}

// SpawnShell starts shell with args in a new PTY. Entries in env are
// appended to the inherited environment, so callers can pin variables
// like PS1 for a predictable prompt.
func SpawnShell(shell string, args, env []string, timeout time.Duration) (*Handle, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell, args...)
	cmd.Env = append(os.Environ(), env...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	return &Handle{
		ptmx:    ptmx,
		cmd:     cmd,
		timeout: timeout,
	}, nil
}

// SetTee mirrors everything subsequently read from the PTY to w. A nil
// writer stops mirroring. If the tee returns an error, the expect call
// that triggered the write fails with that error.
func (h *Handle) SetTee(w io.Writer) {
	h.mu.Lock()
	h.tee = w
	h.mu.Unlock()
}

// SendLine writes text followed by a newline to the subprocess.
func (h *Handle) SendLine(text string) error {
	if _, err := h.ptmx.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("failed to send line: %w", err)
	}
	return nil
}

// ExpectExact blocks until pattern appears literally in the output,
// the timeout elapses, or the stream ends. On a match the text read
// since the previous match is available from Before.
func (h *Handle) ExpectExact(pattern string) error {
	if h.timeout > 0 {
		if err := h.ptmx.SetReadDeadline(time.Now().Add(h.timeout)); err != nil {
			return fmt.Errorf("failed to arm read deadline: %w", err)
		}
		defer h.ptmx.SetReadDeadline(time.Time{})
	}

	// The pattern may already be sitting in leftover buffered output.
	if done, err := h.match(pattern); done || err != nil {
		return err
	}

	chunk := make([]byte, 4096)
	for {
		n, err := h.ptmx.Read(chunk)
		if n > 0 {
			if terr := h.consume(chunk[:n]); terr != nil {
				return terr
			}
			if done, merr := h.match(pattern); done || merr != nil {
				return merr
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return ErrTimeout
			}
			if isEOF(err) {
				return ErrEOF
			}
			return fmt.Errorf("failed to read from PTY: %w", err)
		}
	}
}

// Before returns the text captured between the previous two expect
// matches.
func (h *Handle) Before() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.before
}

// Kill sends sig to the subprocess.
func (h *Handle) Kill(sig syscall.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(sig)
}

// WaitEOF drains the remaining output, still mirroring it to the tee,
// and reaps the subprocess.
func (h *Handle) WaitEOF() error {
	chunk := make([]byte, 4096)
	for {
		n, err := h.ptmx.Read(chunk)
		if n > 0 {
			if terr := h.consume(chunk[:n]); terr != nil {
				return terr
			}
		}
		if err != nil {
			if !isEOF(err) && !errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("failed to drain PTY: %w", err)
			}
			break
		}
	}
	h.reap()
	return nil
}

// Close releases the PTY and makes sure the subprocess is gone. It is
// safe to call on every exit path, including after WaitEOF.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.ptmx.Close()
	if h.cmd.Process != nil && !h.hasWaited() {
		h.cmd.Process.Kill()
	}
	h.reap()
	return err
}

func (h *Handle) consume(chunk []byte) error {
	h.mu.Lock()
	tee := h.tee
	h.buf = append(h.buf, chunk...)
	h.mu.Unlock()

	if tee != nil {
		if _, err := tee.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handle) match(pattern string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := strings.Index(string(h.buf), pattern)
	if idx < 0 {
		return false, nil
	}
	h.before = string(h.buf[:idx])
	h.buf = h.buf[idx+len(pattern):]
	return true, nil
}

func (h *Handle) reap() {
	h.mu.Lock()
	if h.waited {
		h.mu.Unlock()
		return
	}
	h.waited = true
	h.mu.Unlock()
	h.cmd.Wait()
}

func (h *Handle) hasWaited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waited
}

// isEOF reports whether err means the slave side of the PTY is gone.
// Linux reports EIO on the master once the child exits.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO)
}
