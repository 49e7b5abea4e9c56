//go:build linux

package expect

import (
	"time"

	"golang.org/x/sys/unix"
)

// SetEcho enables or disables terminal echo on the PTY. Echo is
// disabled before running a command so the shell does not repeat the
// command text back into the output stream.
func (h *Handle) SetEcho(on bool) error {
	termios, err := unix.IoctlGetTermios(int(h.ptmx.Fd()), unix.TCGETS)
	if err != nil {
		return err
	}
	if on {
		termios.Lflag |= unix.ECHO
	} else {
		termios.Lflag &^= unix.ECHO
	}
	return unix.IoctlSetTermios(int(h.ptmx.Fd()), unix.TCSETS, termios)
}

// IsEchoDisabled checks if the PTY has echo disabled (password entry
// mode). This allows detecting when sudo or similar programs are
// prompting for passwords.
func (h *Handle) IsEchoDisabled() bool {
	termios, err := unix.IoctlGetTermios(int(h.ptmx.Fd()), unix.TCGETS)
	if err != nil {
		return false
	}
	return (termios.Lflag & unix.ECHO) == 0
}

// WaitNoEcho polls the PTY until echo is reported disabled or wait
// elapses, reporting whether echo went off. SetEcho takes effect
// asynchronously from the subprocess's point of view, so callers that
// rely on the command text not being echoed back should wait here
// after disabling.
func (h *Handle) WaitNoEcho(wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for !h.IsEchoDisabled() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}
