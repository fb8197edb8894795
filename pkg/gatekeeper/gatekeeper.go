// Package gatekeeper ties policy lookup, argument sanitization, human
// confirmation, bounded execution and audit logging into one pipeline.
// Every request ends with exactly one terminal audit record, written
// before the outcome is returned to the caller, and no command ever runs
// without a prior approval.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sameehj/gate/pkg/audit"
	"github.com/sameehj/gate/pkg/confirm"
	"github.com/sameehj/gate/pkg/execute"
	"github.com/sameehj/gate/pkg/policy"
	"github.com/sameehj/gate/pkg/sanitize"
)

// ErrDenied reports an explicit human denial.
var ErrDenied = errors.New("command execution not confirmed by user")

// ErrConfirmationTimeout reports that the decision window elapsed with no
// answer. Treated like a denial for execution, recorded distinctly.
var ErrConfirmationTimeout = errors.New("confirmation timed out")

const outputSummaryLimit = 256

// Gatekeeper is the command-execution gatekeeper core.
type Gatekeeper struct {
	store    *policy.Store
	broker   *confirm.Broker
	executor *execute.Executor
	log      *audit.Log
	logger   *slog.Logger
	user     string
}

// New wires the pipeline. All four collaborators are required.
func New(store *policy.Store, broker *confirm.Broker, executor *execute.Executor, log *audit.Log) *Gatekeeper {
	return &Gatekeeper{store: store, broker: broker, executor: executor, log: log}
}

func (g *Gatekeeper) SetLogger(logger *slog.Logger) { g.logger = logger }

// SetUser tags audit records with the acting user.
func (g *Gatekeeper) SetUser(user string) { g.user = user }

// Broker exposes the confirmation broker to approval surfaces.
func (g *Gatekeeper) Broker() *confirm.Broker { return g.broker }

// Execute runs the full pipeline for one request and returns the combined
// process output on success.
func (g *Gatekeeper) Execute(ctx context.Context, command string, args []string) (string, error) {
	id := uuid.NewString()

	pol, _ := g.store.Lookup(command)
	validated, err := sanitize.Validate(command, args, pol)
	if err != nil {
		g.logWarn("request_denied", "request", id, "command", command, "error", err)
		if auditErr := g.append(audit.Record{
			RequestID: id,
			Command:   command,
			Args:      args,
			Outcome:   audit.OutcomeDenied,
			Detail:    err.Error(),
		}); auditErr != nil {
			return "", auditErr
		}
		return "", err
	}

	risk := confirm.AssessRisk(command, validated)
	decision := g.broker.Await(ctx, confirm.Request{
		ID:      id,
		Command: command,
		Args:    validated,
		Risk:    risk,
	})

	switch decision {
	case confirm.DecisionTimedOut:
		g.logWarn("confirmation_timeout", "request", id, "command", command)
		if auditErr := g.append(audit.Record{
			RequestID: id,
			Command:   command,
			Args:      validated,
			Outcome:   audit.OutcomeTimedOut,
			Detail:    fmt.Sprintf("no decision within %s", g.broker.Timeout()),
			Risk:      string(risk),
		}); auditErr != nil {
			return "", auditErr
		}
		return "", ErrConfirmationTimeout
	case confirm.DecisionDenied:
		g.logInfo("request_denied", "request", id, "command", command)
		if auditErr := g.append(audit.Record{
			RequestID: id,
			Command:   command,
			Args:      validated,
			Outcome:   audit.OutcomeDenied,
			Detail:    ErrDenied.Error(),
			Risk:      string(risk),
		}); auditErr != nil {
			return "", auditErr
		}
		return "", ErrDenied
	}

	// Approval is a transition record, not the terminal one; the terminal
	// record follows once the process finishes.
	if auditErr := g.append(audit.Record{
		RequestID: id,
		Command:   command,
		Args:      validated,
		Outcome:   audit.OutcomeApproved,
		Risk:      string(risk),
	}); auditErr != nil {
		return "", auditErr
	}

	g.logInfo("executing", "request", id, "command", command, "args", validated)
	result, err := g.executor.Run(ctx, command, validated, pol)
	if err != nil {
		if auditErr := g.append(audit.Record{
			RequestID: id,
			Command:   command,
			Args:      validated,
			Outcome:   audit.OutcomeFailed,
			Detail:    err.Error(),
			Risk:      string(risk),
		}); auditErr != nil {
			return "", auditErr
		}
		return "", err
	}

	outcome := audit.OutcomeSucceeded
	detail := ""
	if result.ExitCode != 0 {
		outcome = audit.OutcomeFailed
		detail = summarize(result.Stderr)
	}
	exitCode := result.ExitCode
	if auditErr := g.append(audit.Record{
		RequestID:     id,
		Command:       command,
		Args:          validated,
		Outcome:       outcome,
		Detail:        detail,
		ExitCode:      &exitCode,
		DurationMs:    result.Duration.Milliseconds(),
		Truncated:     result.Truncated,
		OutputSummary: summarize(result.Stdout),
		Risk:          string(risk),
	}); auditErr != nil {
		return "", auditErr
	}

	if result.ExitCode != 0 {
		return combineOutput(result), fmt.Errorf("command failed with exit code %d: %s",
			result.ExitCode, summarize(result.Stderr))
	}
	return combineOutput(result), nil
}

// Check reports whether a request would pass validation, without touching
// the audit trail or the confirmation broker.
func (g *Gatekeeper) Check(command string, args []string) error {
	pol, _ := g.store.Lookup(command)
	_, err := sanitize.Validate(command, args, pol)
	return err
}

// ListAllowedCommands returns the allow-list, sorted.
func (g *Gatekeeper) ListAllowedCommands() []string {
	return g.store.Commands()
}

// ReloadPolicy re-reads the policy source; failure keeps the previous set.
func (g *Gatekeeper) ReloadPolicy() error {
	if err := g.store.Reload(); err != nil {
		g.logError("policy_reload_failed", "error", err)
		return err
	}
	g.logInfo("policy_reloaded", "commands", len(g.store.Commands()))
	return nil
}

// AuditText renders the newest limit records (all when limit is zero).
func (g *Gatekeeper) AuditText(limit int) (string, error) {
	records, err := g.log.Read(audit.Filter{Limit: limit})
	if err != nil {
		return "", err
	}
	return audit.Format(records), nil
}

func (g *Gatekeeper) append(rec audit.Record) error {
	rec.Timestamp = time.Now()
	rec.User = g.user
	if err := g.log.Append(rec); err != nil {
		g.logError("audit_append_failed", "request", rec.RequestID, "error", err)
		return fmt.Errorf("audit log unavailable: %w", err)
	}
	return nil
}

func summarize(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > outputSummaryLimit {
		return output[:outputSummaryLimit] + "..."
	}
	return output
}

func combineOutput(result *execute.Result) string {
	if result.Stderr == "" {
		return result.Stdout
	}
	if result.Stdout == "" {
		return result.Stderr
	}
	return result.Stdout + "\n" + result.Stderr
}

func (g *Gatekeeper) logInfo(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}

func (g *Gatekeeper) logWarn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}

func (g *Gatekeeper) logError(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Error(msg, args...)
	}
}
