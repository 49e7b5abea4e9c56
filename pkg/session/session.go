// Package session holds the shared state for one bash session: the
// active process handle, the user and directory context the prompt is
// derived from, the command in flight, and the behavior flags consulted
// by the output pipeline.
//
// A State is written only by the goroutine currently executing a
// command. The runner enforces that discipline; nothing here locks.
package session

import "bashpipe/pkg/expect"

// State is the mutable record shared between the runner and the output
// pipeline for the lifetime of a session.
type State struct {
	// IsRemote is fixed at construction. A remote session is never
	// killed directly on fatal abort; only the close callback runs.
	IsRemote bool

	// Client is the process handle for the command currently
	// executing, nil between commands.
	Client *expect.Handle

	CurrentUser string
	CurrentDir  string

	// Command is the text of the command currently executing.
	Command string

	// PromptFunc computes the prompt string for the current
	// user/directory context.
	PromptFunc func() string

	// CloseFunc runs during a fatal abort, after the handle has been
	// signaled.
	CloseFunc func()

	PrintCommand    bool
	PrintPrompt     bool
	WaitForLocks    bool
	RaiseOnLockWait bool

	// ThreadedDelivery selects marshaled delivery of output events to
	// the consumer.
	ThreadedDelivery bool
}

// New creates session state with the lock-wait default enabled.
func New(isRemote bool) *State {
	return &State{
		IsRemote:     isRemote,
		WaitForLocks: true,
		PromptFunc:   func() string { return "" },
		CloseFunc:    func() {},
	}
}

// Prompt returns the prompt string for the current context.
func (s *State) Prompt() string {
	return s.PromptFunc()
}
