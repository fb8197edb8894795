// Package audit provides the append-only execution trail. Every execution
// request ends in exactly one terminal record; approval adds one transition
// record before the command runs. Records are one JSON object per line and
// flushed to disk before Append returns, so a crash right after an approval
// cannot lose the record of what was approved.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Outcome is the terminal or transition state a record captures.
type Outcome string

const (
	OutcomeDenied    Outcome = "denied"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeApproved  Outcome = "approved"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Record is one immutable audit entry. Args are masked before writing;
// records are never mutated or deleted by this package.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	Command       string    `json:"command"`
	Args          []string  `json:"args,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	DurationMs    int64     `json:"duration_ms,omitempty"`
	Truncated     bool      `json:"truncated,omitempty"`
	OutputSummary string    `json:"output_summary,omitempty"`
	Risk          string    `json:"risk,omitempty"`
	User          string    `json:"user,omitempty"`
}

// Filter narrows what Read returns. The zero value returns everything.
type Filter struct {
	Command string
	Outcome Outcome
	// Limit keeps only the newest N records after sorting. Zero means all.
	Limit int
}

// Log serializes physical writes while leaving readers free to scan their
// own file handle.
type Log struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Open creates the log file (and its directory) if needed and verifies it
// is writable.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{path: path, f: f}, nil
}

// Append writes one record and fsyncs before returning. The lock covers a
// single record's marshal, write and flush, nothing more.
func (l *Log) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Args = MaskSensitive(rec.Args)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("flush audit record: %w", err)
	}
	return nil
}

// Read returns records matching filter, sorted by timestamp ascending with
// ties broken by request id. It opens its own handle and never holds the
// append lock.
func (l *Log) Read(filter Filter) ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log for read: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// A torn trailing line from a crashed writer is skipped, not
			// fatal: everything before it is still intact.
			continue
		}
		if filter.Command != "" && rec.Command != filter.Command {
			continue
		}
		if filter.Outcome != "" && rec.Outcome != filter.Outcome {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].RequestID < records[j].RequestID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[len(records)-filter.Limit:]
	}
	return records, nil
}

// Close releases the append handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Path returns the backing file location.
func (l *Log) Path() string {
	return l.path
}

// Format renders records as display text. Output is deterministic for the
// same input records.
func Format(records []Record) string {
	if len(records) == 0 {
		return "audit log is empty\n"
	}
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "%s  %-9s  %s", rec.Timestamp.Format(time.RFC3339), rec.Outcome, rec.Command)
		if len(rec.Args) > 0 {
			fmt.Fprintf(&b, " %s", strings.Join(rec.Args, " "))
		}
		fmt.Fprintf(&b, "  [req %s]", rec.RequestID)
		if rec.ExitCode != nil {
			fmt.Fprintf(&b, " exit=%d", *rec.ExitCode)
		}
		if rec.DurationMs > 0 {
			fmt.Fprintf(&b, " %dms", rec.DurationMs)
		}
		if rec.Truncated {
			b.WriteString(" (output truncated)")
		}
		if rec.Detail != "" {
			fmt.Fprintf(&b, ": %s", rec.Detail)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
