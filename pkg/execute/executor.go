// Package execute runs approved commands as child processes with enforced
// wall-clock timeouts and bounded output capture. Arguments are always
// passed as a literal vector to the process-creation primitive; no shell
// is ever interpreted, which removes injection structurally instead of
// relying on escaping.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sameehj/gate/pkg/policy"
)

// ErrorKind classifies execution failures.
type ErrorKind string

const (
	// KindTimeout means the process hit its wall-clock limit and was killed.
	KindTimeout ErrorKind = "timeout"
	// KindSpawnFailed means the process never started (binary not found,
	// permission denied, bad working directory).
	KindSpawnFailed ErrorKind = "spawn_failed"
)

// Error is a non-retryable execution failure. The engine never retries; a
// failure is final for that request.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("execution %s: %s", e.Kind, e.Detail)
}

// Result captures a completed process. Truncated marks output that hit the
// byte cap; truncation is a flag, not a failure.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Executor runs commands under resource limits. Per-command policy values
// override the defaults.
type Executor struct {
	DefaultTimeout   time.Duration
	DefaultMaxOutput int
}

// Run executes command with args under pol's limits. The caller is
// responsible for validation and confirmation; Run only enforces the
// resource envelope.
func (e *Executor) Run(ctx context.Context, command string, args []string, pol *policy.CommandPolicy) (*Result, error) {
	if command == "" {
		return nil, &Error{Kind: KindSpawnFailed, Detail: "command is required"}
	}

	timeout := e.DefaultTimeout
	maxOutput := e.DefaultMaxOutput
	var workdir string
	if pol != nil {
		if t := pol.Timeout(); t > 0 {
			timeout = t
		}
		if pol.MaxOutputBytes > 0 {
			maxOutput = pol.MaxOutputBytes
		}
		workdir = pol.WorkingDirectory
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if workdir != "" {
		cmd.Dir = workdir
	}

	stdout := &limitedBuffer{limit: maxOutput}
	stderr := &limitedBuffer{limit: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  duration,
		Truncated: stdout.truncated || stderr.truncated,
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{
				Kind:   KindTimeout,
				Detail: fmt.Sprintf("%s exceeded %s", command, timeout),
			}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, &Error{Kind: KindSpawnFailed, Detail: err.Error()}
	}
	return result, nil
}

// limitedBuffer caps captured output. Writes past the limit report success
// so the child keeps running; the overflow is simply dropped.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}
