package runner

import (
	"fmt"
	"log/slog"
	"strings"
)

// runCD is the change-directory fast path: no subprocess is spawned.
// A failed cd is reported as an output line, not an error, and the
// record always carries exit code 0. That mirrors how the shell keeps
// the session alive after a failed cd; whether the recorded exit code
// should stay 0 is a policy decision tracked in DESIGN.md.
func (r *Runner) runCD(command string, opts Options) error {
	r.state.Command = command
	r.applyPrintOverrides(opts)

	dir := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(stripSudo(command)), "cd"))

	ok := r.ChangeDir(dir)

	if r.state.PrintCommand {
		r.pipe.WriteBypass(command)
	}

	msg := ""
	if !ok {
		msg = fmt.Sprintf("bash: cd: %s: No such file or directory", dir)
		r.pipe.WriteBypass(msg)
	}

	rec := r.hist.Add(command, r.state.CurrentDir, msg, 0)
	slog.Debug("recorded cd", "id", rec.ID, "directory", r.state.CurrentDir, "ok", ok)

	if r.state.PrintPrompt {
		r.pipe.WriteBypass(r.Prompt())
	}
	return nil
}
