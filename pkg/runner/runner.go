// Package runner executes commands against a bash session end to end:
// it spawns a process handle per command, primes the output pipeline,
// sends the command, waits for the post-command prompt, captures the
// exit code, records the result in history, and guarantees the handle
// is released on every exit path.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"bashpipe/pkg/expect"
	"bashpipe/pkg/history"
	"bashpipe/pkg/output"
	"bashpipe/pkg/session"
	"bashpipe/pkg/sink"
	"bashpipe/pkg/textutil"
)

// ErrEmptyCommand is returned when Run is called with a blank command.
var ErrEmptyCommand = errors.New("command must be specified")

// CommandError reports a failure to execute a command: spawn errors,
// timeouts waiting for the prompt, or garbled exit-code capture.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// DefaultTimeout bounds each expect call unless overridden.
const DefaultTimeout = 30 * time.Second

// Settings configures a Runner.
type Settings struct {
	// Directory is the initial working directory; empty keeps the
	// process working directory.
	Directory string

	// Shell is the shell binary to spawn per command.
	Shell string

	// Timeout bounds each expect call; zero disables it.
	Timeout time.Duration

	// ThreadedDelivery marshals consumer callbacks onto the sink's
	// worker goroutine instead of calling them inline.
	ThreadedDelivery bool

	WaitForLocks    bool
	RaiseOnLockWait bool
	PrintCommand    bool
	PrintPrompt     bool
}

// DefaultSettings returns the session defaults: 30 second timeout,
// waiting quietly on package-manager locks.
func DefaultSettings() Settings {
	return Settings{
		Shell:        "/bin/bash",
		Timeout:      DefaultTimeout,
		WaitForLocks: true,
	}
}

// Options adjusts a single Run call. The print overrides, when set,
// update the session flags for this and subsequent commands, matching
// the session-sticky behavior of the flag setters.
type Options struct {
	Sudo          bool
	Timeout       time.Duration // 0 = session default
	PrintCommand  *bool         // nil = keep session flag
	PrintPrompt   *bool         // nil = keep session flag
	PrintExitCode bool
}

// Runner executes commands one at a time against a local bash session.
// A Runner must not be used from multiple goroutines concurrently; use
// RunAsync for background execution.
type Runner struct {
	state *session.State
	pipe  *output.Pipeline
	sink  *sink.Sink
	hist  *history.History

	shell    string
	timeout  time.Duration
	hostname string
	homeDir  string
}

// New creates a runner for the local user and wires the output
// pipeline to the given consumer.
func New(settings Settings, consumer sink.Consumer) (*Runner, error) {
	if settings.Shell == "" {
		settings.Shell = "/bin/bash"
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	st := session.New(false)
	st.CurrentUser = currentUser()
	st.PrintCommand = settings.PrintCommand
	st.PrintPrompt = settings.PrintPrompt
	st.WaitForLocks = settings.WaitForLocks
	st.RaiseOnLockWait = settings.RaiseOnLockWait
	st.ThreadedDelivery = settings.ThreadedDelivery

	var sk *sink.Sink
	if settings.ThreadedDelivery {
		sk = sink.NewMarshaled(consumer)
	} else {
		sk = sink.NewDirect(consumer)
	}

	r := &Runner{
		state:    st,
		sink:     sk,
		hist:     history.New(),
		shell:    settings.Shell,
		timeout:  settings.Timeout,
		hostname: hostname,
		homeDir:  homeDir,
	}
	st.PromptFunc = r.Prompt
	r.pipe = output.New(st, sk)

	if wd, err := os.Getwd(); err == nil {
		st.CurrentDir = wd
	}
	if settings.Directory != "" && !r.ChangeDir(settings.Directory) {
		return nil, fmt.Errorf("no such directory: %s", settings.Directory)
	}

	return r, nil
}

// History returns the command history for this session.
func (r *Runner) History() *history.History {
	return r.hist
}

// State returns the shared session state. Only the goroutine currently
// executing Run may mutate it.
func (r *Runner) State() *session.State {
	return r.state
}

// Close flushes and stops the delivery sink.
func (r *Runner) Close() {
	r.sink.Close()
}

// Prompt returns what the terminal prompt looks like in the current
// working directory: user@host:dir$ with ~ for the home directory and
// # instead of $ for root.
func (r *Runner) Prompt() string {
	dir := "~"
	if r.state.CurrentDir != r.homeDir {
		dir = r.state.CurrentDir
	}
	mark := "$"
	if r.state.CurrentUser == "root" {
		mark = "#"
	}
	return fmt.Sprintf("%s@%s:%s%s", r.state.CurrentUser, r.hostname, dir, mark)
}

// ChangeDir changes the session working directory, resolving ~ to the
// home directory. It returns false if the directory does not exist.
func (r *Runner) ChangeDir(dir string) bool {
	if dir == "" {
		dir = "~"
	}
	resolved := strings.ReplaceAll(dir, "~", r.homeDir)
	if err := os.Chdir(resolved); err != nil {
		return false
	}
	if wd, err := os.Getwd(); err == nil {
		r.state.CurrentDir = wd
	} else {
		r.state.CurrentDir = resolved
	}
	return true
}

// Run executes one command and streams its filtered output to the
// consumer. It blocks until the command completes, the timeout
// elapses, or a fatal condition aborts the stream.
func (r *Runner) Run(command string, opts Options) error {
	if strings.TrimSpace(command) == "" {
		return ErrEmptyCommand
	}
	if opts.Sudo && !strings.HasPrefix(command, "sudo ") {
		command = "sudo " + command
	}
	if strings.HasPrefix(strings.TrimSpace(stripSudo(command)), "cd") {
		return r.runCD(command, opts)
	}
	return r.runCommand(command, opts)
}

// RunAsync executes Run on a background goroutine and reports the
// result on the returned channel. The sink should be marshaled in this
// mode so consumer callbacks keep a single execution context.
func (r *Runner) RunAsync(command string, opts Options) <-chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(command, opts)
	}()
	return errc
}

func (r *Runner) runCommand(command string, opts Options) error {
	timeout := r.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	prompt := r.Prompt()

	// Skip rc files and pin PS1 so the prompt the subshell prints is
	// exactly the one the expect loop waits for, regardless of how the
	// host configures bash.
	h, err := expect.SpawnShell(r.shell,
		[]string{"--norc", "--noprofile"},
		[]string{"PS1=" + prompt},
		timeout)
	if err != nil {
		return &CommandError{Command: command, Err: err}
	}
	defer func() {
		h.Close()
		r.state.Client = nil
	}()

	r.state.Command = command
	r.state.Client = h
	r.applyPrintOverrides(opts)
	r.pipe.BeginCommand()

	if r.state.PrintPrompt && r.pipe.LastLine() == "" {
		r.pipe.WriteBypass(r.Prompt())
	}
	if r.state.PrintCommand {
		r.pipe.WriteBypass(command)
	}

	// From here on the pipeline observes everything the PTY produces.
	h.SetTee(r.pipe)

	if err := h.SetEcho(false); err != nil {
		slog.Warn("failed to disable PTY echo", "error", err)
	} else if !h.WaitNoEcho(time.Second) {
		slog.Warn("PTY echo still enabled, command text may leak into output")
	}

	// Catch the first prompt so the command starts from a ready shell.
	if err := h.ExpectExact(prompt); err != nil {
		return r.streamError(command, err)
	}

	slog.Debug("running command", "command", command)
	if err := h.SendLine(command); err != nil {
		return &CommandError{Command: command, Err: err}
	}

	// Catch the prompt after the command completes.
	if err := h.ExpectExact(prompt); err != nil {
		return r.streamError(command, err)
	}
	result := h.Before()

	h.SetTee(nil)

	exitStr, err := r.capture(h, "echo $?", prompt)
	if err != nil {
		return r.streamError(command, err)
	}
	exitStr = strings.TrimSpace(exitStr)
	exitCode, err := strconv.Atoi(exitStr)
	if err != nil {
		return &CommandError{Command: command, Err: fmt.Errorf("failed to parse exit code %q: %w", exitStr, err)}
	}

	rec := r.hist.Add(command, r.state.CurrentDir, result, exitCode)
	slog.Debug("recorded command", "id", rec.ID, "command", rec.Command, "exit_code", rec.ExitCode)

	if opts.PrintExitCode {
		r.pipe.WriteString(exitStr)
	}

	// Terminate the subshell and wait for the stream to end.
	if err := h.SendLine("exit"); err != nil {
		return &CommandError{Command: command, Err: err}
	}
	if err := h.WaitEOF(); err != nil {
		return &CommandError{Command: command, Err: err}
	}

	slog.Debug("command complete", "command", command)
	return nil
}

// capture runs a helper command on an already-open handle and returns
// the text it printed before the next prompt. The pipeline is detached
// while it runs, so nothing leaks to the consumer. Control sequences
// the terminal emits around the command (bracketed-paste toggles and
// the like) are stripped before trimming.
func (r *Runner) capture(h *expect.Handle, command, prompt string) (string, error) {
	if err := h.SendLine(command); err != nil {
		return "", err
	}
	if err := h.ExpectExact(prompt); err != nil {
		return "", err
	}
	before := strings.Replace(textutil.StripANSI(h.Before()), command, "", 1)
	return strings.Trim(before, "\r\n \t"), nil
}

// streamError maps a failed expect call to the right error category: a
// pipeline abort outranks the read error it caused, and timeouts stay
// recognizable through errors.Is.
func (r *Runner) streamError(command string, err error) error {
	if aerr := r.pipe.Err(); aerr != nil {
		return aerr
	}
	return &CommandError{Command: command, Err: err}
}

func (r *Runner) applyPrintOverrides(opts Options) {
	if opts.PrintCommand != nil {
		r.state.PrintCommand = *opts.PrintCommand
	}
	if opts.PrintPrompt != nil {
		r.state.PrintPrompt = *opts.PrintPrompt
	}
}

func stripSudo(command string) string {
	return strings.TrimPrefix(command, "sudo ")
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
