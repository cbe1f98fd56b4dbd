package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	pagepushlog "github.com/pagepush/pagepush/pkg/log"
	"github.com/pagepush/pagepush/pkg/logs/redact"
)

// DefaultCommandTimeout bounds a single command when the context has no deadline.
const DefaultCommandTimeout = 5 * time.Minute

// Runner executes an external command in a directory and returns its trimmed
// standard output. Implementations report failures as *CommandError.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// StderrPolicy decides whether text on standard error fails a command that
// exited successfully.
type StderrPolicy int

const (
	// StderrStrict treats any non-informational stderr output as a failure.
	StderrStrict StderrPolicy = iota
	// StderrIgnore only looks at the exit status.
	StderrIgnore
)

// informationalStderr are line prefixes git writes to stderr that never
// indicate a failure: server banners and advice.
var informationalStderr = []string{"remote:", "hint:"}

// CommandError describes a failed command with its captured output.
type CommandError struct {
	Name   string
	Args   []string
	Dir    string
	Stdout string
	Stderr string
	Err    error
}

// Command returns the command line, redacted.
func (e *CommandError) Command() string {
	return redact.String(strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " ")))
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Command())
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	return redact.String(b.String())
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrStderrOutput is the CommandError cause when a command exited zero but
// wrote to stderr under StderrStrict.
var ErrStderrOutput = errors.New("command wrote to stderr")

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Policy defaults to StderrStrict.
	Policy StderrPolicy
	// Env is appended to the process environment.
	Env []string
	// Timeout overrides DefaultCommandTimeout.
	Timeout time.Duration
}

// NewExecRunner returns a runner with the strict stderr policy.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Policy: StderrStrict,
		// Never block on a credential prompt in CI.
		Env: []string{"GIT_TERMINAL_PROMPT=0"},
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = DefaultCommandTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pagepushlog.Debug("exec", "dir", dir, "cmd", redact.String(name+" "+strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = ctx.Err()
		}
		return "", &CommandError{Name: name, Args: args, Dir: dir, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}

	if r.Policy == StderrStrict {
		if meaningful := meaningfulStderr(stderr.String()); meaningful != "" {
			return "", &CommandError{Name: name, Args: args, Dir: dir, Stdout: stdout.String(), Stderr: meaningful, Err: ErrStderrOutput}
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// meaningfulStderr drops blank and informational lines.
func meaningfulStderr(stderr string) string {
	var kept []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		informational := false
		for _, prefix := range informationalStderr {
			if strings.HasPrefix(line, prefix) {
				informational = true
				break
			}
		}
		if !informational {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
