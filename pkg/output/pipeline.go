// Package output implements the session output pipeline: it consumes
// raw PTY chunks, splits them into logical lines, classifies each line,
// applies the per-classification policy, and emits accepted lines
// through the delivery sink. Fatal classifications (sudo required, lock
// held with raising enabled) tear the process down and surface a
// *PermissionError to the runner.
package output

import (
	"fmt"
	"log/slog"
	"strings"
	"syscall"

	"bashpipe/pkg/checks"
	"bashpipe/pkg/session"
	"bashpipe/pkg/sink"
	"bashpipe/pkg/textutil"
)

// PermissionError reports a fatal condition detected mid-stream: a
// command that needed sudo, or lock contention while the session is
// configured to raise instead of wait.
type PermissionError struct {
	Reason string
	Line   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s - %s", e.Reason, e.Line)
}

// Pipeline is the stateful filter between the PTY and the delivery
// sink. It implements io.Writer so it can be attached as the process
// handle's tee; a write that triggers a fatal abort returns the abort
// error, which stops the expect loop feeding it.
type Pipeline struct {
	state *session.State
	sink  *sink.Sink

	lastLine       string
	waitingForLock bool
	aborted        bool
	abortErr       error
}

// New creates a pipeline bound to the session state and sink.
func New(st *session.State, sk *sink.Sink) *Pipeline {
	return &Pipeline{state: st, sink: sk}
}

// Write consumes one raw chunk from the PTY. It satisfies io.Writer.
func (p *Pipeline) Write(b []byte) (int, error) {
	if p.aborted {
		return 0, p.abortErr
	}
	p.process(string(b))
	if p.aborted {
		return len(b), p.abortErr
	}
	return len(b), nil
}

// WriteString runs text through the normal filter chain.
func (p *Pipeline) WriteString(text string) error {
	_, err := p.Write([]byte(text))
	return err
}

// WriteBypass emits text directly, skipping classification and
// filtering. It is used for synthetic lines the runner constructs
// itself: echoed commands, prompts, cd error messages. Delivery still
// goes through the sink so ordering matches filtered output.
func (p *Pipeline) WriteBypass(text string) {
	p.emit(textutil.StripANSI(text))
}

// LastLine returns the most recently emitted line. It survives across
// commands: prompt priming uses it to decide whether any output exists
// yet, and duplicate-prompt suppression compares against it.
func (p *Pipeline) LastLine() string {
	return p.lastLine
}

// Err returns the abort error if a fatal classification fired, nil
// otherwise.
func (p *Pipeline) Err() error {
	return p.abortErr
}

// BeginCommand clears the per-command state before a new command
// starts streaming. The last emitted line is kept on purpose.
func (p *Pipeline) BeginCommand() {
	p.waitingForLock = false
	p.aborted = false
	p.abortErr = nil
}

// Reset returns the pipeline to its initial state.
func (p *Pipeline) Reset() {
	p.lastLine = ""
	p.BeginCommand()
}

// process splits one raw chunk into logical lines and filters each.
// The split order matters: ANSI strip, then the doubled-CR quirk, then
// edge trims, then CRLF, dropping empties and percentage progress
// redraws before classification.
func (p *Pipeline) process(text string) {
	prompt := p.state.Prompt()

	var lines []string
	for _, piece := range strings.Split(textutil.StripANSI(text), "\r\r") {
		piece = textutil.TrimEdges(piece)
		for _, sub := range strings.Split(piece, "\r\n") {
			if sub == "" || textutil.HasPercent(sub) {
				continue
			}
			// Sometimes the last command's output prints on the same
			// physical line as the next prompt. Split the remainder
			// off and emit the prompt as its own line.
			if prompt != "" && strings.Contains(sub, prompt) {
				rest := strings.TrimSpace(strings.ReplaceAll(sub, prompt, ""))
				if rest != "" {
					lines = append(lines, rest)
				}
				lines = append(lines, prompt)
			} else {
				lines = append(lines, sub)
			}
		}
	}

	for _, line := range lines {
		p.filterLine(textutil.TrimLineBreaks(line))
		if p.aborted {
			return
		}
	}
}

// filterLine applies the classification precedence chain to one line
// and either drops it, emits it, or triggers a fatal abort.
func (p *Pipeline) filterLine(line string) {
	if line == "" {
		return
	}

	cls := checks.Classify(line, p.state.CurrentUser)
	if cls == checks.ControlGarbage {
		return
	}
	if checks.IsExitEcho(line) {
		return
	}
	if line == p.state.Command && !p.state.PrintCommand {
		return
	}

	switch cls {
	case checks.AptWarning, checks.DebuggerNoise, checks.DebconfNoise:
		// Known diagnostic noise, dropped unconditionally.

	case checks.AptProgress:
		p.emit(textutil.CleanProgress(line))

	case checks.PromptEcho:
		if strings.TrimSpace(p.lastLine) != strings.TrimSpace(line) &&
			strings.TrimSpace(p.lastLine) != p.state.Command &&
			p.state.PrintPrompt {
			p.emit(strings.TrimSpace(line))
		}

	case checks.SudoRequired:
		p.emit(line)
		p.abort(&PermissionError{Reason: "command needs to be run as sudo", Line: line})

	case checks.LockHeld:
		if p.state.RaiseOnLockWait {
			p.emit(line)
			p.abort(&PermissionError{Reason: "waiting for cache lock", Line: line})
		} else if p.state.WaitForLocks && !p.waitingForLock {
			// Emit the first lock message, then wait quietly while
			// the same message repeats on every poll.
			p.waitingForLock = true
			p.emit(line)
		}

	default:
		p.emit(line)
	}
}

func (p *Pipeline) emit(line string) {
	p.lastLine = line
	p.sink.Deliver(sink.Event{
		IsRemote: p.state.IsRemote,
		Client:   p.state.Client,
		Line:     line,
		Command:  p.state.Command,
	})
}

// abort kills the process handle (local sessions only), runs the
// registered close callback, and records the error for the runner.
func (p *Pipeline) abort(err *PermissionError) {
	p.aborted = true
	p.abortErr = err

	slog.Warn("fatal condition detected in output stream",
		"reason", err.Reason, "line", err.Line)

	if !p.state.IsRemote && p.state.Client != nil {
		p.state.Client.Kill(syscall.SIGHUP)
	}
	if p.state.CloseFunc != nil {
		p.state.CloseFunc()
	}
}
