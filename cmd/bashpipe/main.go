package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"golang.org/x/term"

	"bashpipe/pkg/buffer"
	"bashpipe/pkg/config"
	"bashpipe/pkg/expect"
	"bashpipe/pkg/logging"
	"bashpipe/pkg/output"
	"bashpipe/pkg/runner"
	"bashpipe/pkg/sink"
	"bashpipe/pkg/version"
)

// exitInternal is returned for spawn, timeout and permission failures,
// as opposed to mirroring the exit code of the command itself.
const exitInternal = 125

// tailLines bounds the output retained for the failure log entry.
const tailLines = 50

var (
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && (args[0] == "version" || args[0] == "--version") {
		fmt.Println(version.Info())
		return 0
	}

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return exitInternal
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return exitInternal
	}

	if _, err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", err)
	}

	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "run":
		return runCommand(cfg, args[1:])
	case "cd":
		// A bare cd maps onto the same fast path as "run cd".
		return runCommand(cfg, append([]string{"--"}, "cd "+strings.Join(args[1:], " ")))
	default:
		usage()
		return 2
	}
}

func runCommand(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sudo := fs.Bool("sudo", false, "prepend sudo to the command")
	timeout := fs.Int("timeout", cfg.TimeoutSeconds, "seconds to wait for the prompt (0 disables)")
	printCommand := fs.Bool("print-command", cfg.PrintCommand, "echo the command before its output")
	printPrompt := fs.Bool("print-prompt", cfg.PrintPrompt, "print the prompt after the output")
	printExitCode := fs.Bool("print-exit-code", false, "print the exit code on its own line")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	command := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(command) == "" {
		usage()
		return 2
	}

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	tail := buffer.New(tailLines)

	settings := runner.DefaultSettings()
	settings.Shell = cfg.Shell
	settings.Timeout = time.Duration(*timeout) * time.Second
	settings.WaitForLocks = cfg.WaitForLocks
	settings.RaiseOnLockWait = cfg.RaiseOnLockWait
	settings.ThreadedDelivery = cfg.ThreadedDelivery
	settings.PrintCommand = *printCommand
	settings.PrintPrompt = *printPrompt

	r, err := runner.New(settings, func(ev sink.Event) {
		tail.Append(ev.Line)
		fmt.Println(render(ev, styled))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting session: %v\n", err)
		return exitInternal
	}
	defer r.Close()

	err = r.Run(command, runner.Options{
		Sudo:          *sudo,
		PrintExitCode: *printExitCode,
	})
	if err != nil {
		var perm *output.PermissionError
		switch {
		case errors.Is(err, runner.ErrEmptyCommand):
			usage()
			return 2
		case errors.As(err, &perm):
			fmt.Fprintln(os.Stderr, paint(errStyle, perm.Error(), styled))
			return exitInternal
		case errors.Is(err, expect.ErrTimeout):
			fmt.Fprintln(os.Stderr, paint(errStyle, "Timed out waiting for the command prompt", styled))
			return exitInternal
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitInternal
		}
	}

	rec, err := r.History().Last()
	if err != nil {
		return exitInternal
	}
	if rec.ExitCode != 0 {
		slog.Warn("command failed",
			"command", rec.Command,
			"exit_code", rec.ExitCode,
			"tail", tail.TailText(tailLines))
	}
	return rec.ExitCode
}

// render styles prompt lines and cd errors when stdout is a terminal;
// piped output stays plain.
func render(ev sink.Event, styled bool) string {
	switch {
	case strings.HasPrefix(ev.Line, "bash: cd: "):
		return paint(errStyle, ev.Line, styled)
	case strings.HasSuffix(ev.Line, "$") || strings.HasSuffix(ev.Line, "#"):
		return paint(promptStyle, ev.Line, styled)
	default:
		return ev.Line
	}
}

func paint(style lipgloss.Style, s string, styled bool) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  bashpipe run [--sudo] [--timeout N] [--print-command] [--print-prompt] [--print-exit-code] -- <command>
  bashpipe cd <dir>
  bashpipe version`)
}
