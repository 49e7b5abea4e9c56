//go:build !linux

package expect

import "time"

// SetEcho is a no-op on platforms without termios support.
func (h *Handle) SetEcho(on bool) error {
	return nil
}

// IsEchoDisabled always returns false on platforms without termios
// support.
func (h *Handle) IsEchoDisabled() bool {
	return false
}

// WaitNoEcho succeeds immediately; the echo state is not observable
// without termios.
func (h *Handle) WaitNoEcho(time.Duration) bool {
	return true
}
