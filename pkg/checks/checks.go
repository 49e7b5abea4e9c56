// Package checks classifies single lines of terminal output against the
// known noise and error patterns produced by bash, apt and PTY plumbing.
// All functions are pure: the only inputs are the line itself and, for
// prompt detection, the current user name.
package checks

import "strings"

// Classification identifies which rule matched a line.
type Classification int

const (
	Plain Classification = iota
	ControlGarbage
	AptWarning
	DebuggerNoise
	DebconfNoise
	AptProgress
	PromptEcho
	SudoRequired
	LockHeld
)

// String returns the classification name for logging.
func (c Classification) String() string {
	switch c {
	case Plain:
		return "plain"
	case ControlGarbage:
		return "control_garbage"
	case AptWarning:
		return "apt_warning"
	case DebuggerNoise:
		return "debugger_noise"
	case DebconfNoise:
		return "debconf_noise"
	case AptProgress:
		return "apt_progress"
	case PromptEcho:
		return "prompt_echo"
	case SudoRequired:
		return "sudo_required"
	case LockHeld:
		return "lock_held"
	default:
		return "unknown"
	}
}

// IsSudoRequired checks for the apt error caused by running a
// privileged command without sudo.
func IsSudoRequired(line string) bool {
	return strings.Contains(line, "E: Could not open lock file") &&
		strings.Contains(line, "open (13: Permission denied)")
}

// IsLockHeld checks for the apt message printed while another process
// holds the package cache lock.
func IsLockHeld(line string) bool {
	return strings.Contains(line, "Waiting for cache lock: Could not get lock") &&
		strings.Contains(line, "It is held by process")
}

// IsAptWarning checks for the warning apt prints when used in scripts.
func IsAptWarning(line string) bool {
	return strings.Contains(line,
		"WARNING: apt does not have a stable CLI interface. Use with caution in scripts.")
}

// IsDebuggerNoise checks for the warning printed when a process is
// spawned under a python debugger.
func IsDebuggerNoise(line string) bool {
	return strings.Contains(line,
		"bytes arguments were passed to a new process creation function. Breakpoints may not work correctly.")
}

// IsDebconfNoise checks for the errors debconf prints when an
// interactive frontend is unavailable on a dumb terminal.
func IsDebconfNoise(line string) bool {
	return strings.Contains(line, "debconf: unable to initialize frontend: Dialog") ||
		strings.Contains(line, "debconf: (Dialog frontend will not work on a dumb terminal") ||
		strings.Contains(line, "debconf: falling back to frontend: Readline")
}

// IsControlGarbage checks for control lines produced by the PTY
// plumbing itself: expect markers, the prompt-disabling command echo,
// and password prompt fragments.
func IsControlGarbage(line string) bool {
	return strings.Contains(line, "[PEXPECT]") ||
		strings.Contains(line, "unset PROMPT_COMMAND") ||
		strings.Contains(line, "'s password:")
}

// IsAptProgress checks for legitimate apt update status lines, as
// opposed to percentage progress redraws.
func IsAptProgress(line string) bool {
	return (strings.Contains(line, "Hit:") && strings.Contains(line, "http")) ||
		(strings.Contains(line, "Get:") && strings.Contains(line, "http")) ||
		(strings.Contains(line, "Ign:") && strings.Contains(line, "http"))
}

// IsPrompt checks whether the line is the shell prompt for user.
func IsPrompt(line, user string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, user+"@") && strings.HasSuffix(trimmed, "$")
}

// IsExitEcho checks for the echoed session-terminating command.
func IsExitEcho(line string) bool {
	return strings.TrimSpace(line) == "exit"
}

// Classify returns the single classification for line, first match
// wins. Running it twice on the same inputs always yields the same
// result.
func Classify(line, user string) Classification {
	switch {
	case IsControlGarbage(line):
		return ControlGarbage
	case IsAptWarning(line):
		return AptWarning
	case IsDebuggerNoise(line):
		return DebuggerNoise
	case IsDebconfNoise(line):
		return DebconfNoise
	case IsAptProgress(line):
		return AptProgress
	case IsPrompt(line, user):
		return PromptEcho
	case IsSudoRequired(line):
		return SudoRequired
	case IsLockHeld(line):
		return LockHeld
	default:
		return Plain
	}
}
