package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "logs", "audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestAppendReadRoundTrip(t *testing.T) {
	t.Parallel()
	log := openLog(t)

	exitCode := 0
	rec := Record{
		Timestamp:     time.Now().UTC(),
		RequestID:     "req-1",
		Command:       "ls",
		Args:          []string{"-la", "/tmp"},
		Outcome:       OutcomeSucceeded,
		ExitCode:      &exitCode,
		DurationMs:    12,
		OutputSummary: "total 0",
		Risk:          "low",
		User:          "alice",
	}
	require.NoError(t, log.Append(rec))

	records, err := log.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.True(t, got.Timestamp.Equal(rec.Timestamp))
	assert.Equal(t, rec.RequestID, got.RequestID)
	assert.Equal(t, rec.Command, got.Command)
	assert.Equal(t, rec.Args, got.Args)
	assert.Equal(t, rec.Outcome, got.Outcome)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, exitCode, *got.ExitCode)
	assert.Equal(t, rec.DurationMs, got.DurationMs)
	assert.Equal(t, rec.OutputSummary, got.OutputSummary)
	assert.Equal(t, rec.Risk, got.Risk)
	assert.Equal(t, rec.User, got.User)
}

func TestReadOrdering(t *testing.T) {
	t.Parallel()
	log := openLog(t)

	base := time.Now().UTC()
	// Written out of order, with a timestamp tie broken by request id.
	require.NoError(t, log.Append(Record{Timestamp: base.Add(2 * time.Second), RequestID: "c", Command: "ls", Outcome: OutcomeDenied}))
	require.NoError(t, log.Append(Record{Timestamp: base, RequestID: "b", Command: "ls", Outcome: OutcomeDenied}))
	require.NoError(t, log.Append(Record{Timestamp: base, RequestID: "a", Command: "ls", Outcome: OutcomeDenied}))

	records, err := log.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].RequestID)
	assert.Equal(t, "b", records[1].RequestID)
	assert.Equal(t, "c", records[2].RequestID)
}

func TestReadFilter(t *testing.T) {
	t.Parallel()
	log := openLog(t)

	base := time.Now().UTC()
	require.NoError(t, log.Append(Record{Timestamp: base, RequestID: "1", Command: "ls", Outcome: OutcomeSucceeded}))
	require.NoError(t, log.Append(Record{Timestamp: base.Add(time.Second), RequestID: "2", Command: "rm", Outcome: OutcomeDenied}))
	require.NoError(t, log.Append(Record{Timestamp: base.Add(2 * time.Second), RequestID: "3", Command: "ls", Outcome: OutcomeDenied}))

	records, err := log.Read(Filter{Command: "ls"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = log.Read(Filter{Outcome: OutcomeDenied})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = log.Read(Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "3", records[0].RequestID, "limit keeps the newest records")
}

func TestReadSkipsTornLine(t *testing.T) {
	t.Parallel()
	log := openLog(t)

	require.NoError(t, log.Append(Record{RequestID: "1", Command: "ls", Outcome: OutcomeSucceeded}))

	f, err := os.OpenFile(log.Path(), os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2026-01-01T0`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := log.Read(Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()
	log := openLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = log.Append(Record{
				RequestID: string(rune('a' + id)),
				Command:   "ls",
				Outcome:   OutcomeSucceeded,
			})
		}(i)
	}
	wg.Wait()

	records, err := log.Read(Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 20, "every record lands on its own line")
}

func TestFormatDeterministic(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	exit := 1
	records := []Record{
		{Timestamp: ts, RequestID: "r1", Command: "ls", Args: []string{"-l"}, Outcome: OutcomeSucceeded},
		{Timestamp: ts.Add(time.Second), RequestID: "r2", Command: "rm", Outcome: OutcomeFailed, ExitCode: &exit, Detail: "boom", Truncated: true},
	}
	first := Format(records)
	second := Format(records)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "succeeded")
	assert.Contains(t, first, "r1")
	assert.Contains(t, first, "exit=1")
	assert.Contains(t, first, "(output truncated)")
	assert.Equal(t, 2, strings.Count(first, "\n"))

	assert.Equal(t, "audit log is empty\n", Format(nil))
}

func TestMaskSensitive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"plain", []string{"-l", "/tmp"}, []string{"-l", "/tmp"}},
		{"password flag", []string{"-p", "hunter2"}, []string{"-p", "[MASKED]"}},
		{"long flag", []string{"--password", "hunter2", "/tmp"}, []string{"--password", "[MASKED]", "/tmp"}},
		{"env style", []string{"API_TOKEN=abc123"}, []string{"API_TOKEN=[MASKED]"}},
		{"secret assignment", []string{"SECRET=s3cr3t", "-l"}, []string{"SECRET=[MASKED]", "-l"}},
		{"trailing flag", []string{"-p"}, []string{"-p"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MaskSensitive(tc.in))
		})
	}
}

func TestAppendMasksArgs(t *testing.T) {
	t.Parallel()
	log := openLog(t)

	require.NoError(t, log.Append(Record{
		RequestID: "r1",
		Command:   "mysql",
		Args:      []string{"-p", "hunter2"},
		Outcome:   OutcomeApproved,
	}))
	records, err := log.Read(Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"-p", "[MASKED]"}, records[0].Args)

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}
