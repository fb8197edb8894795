package gateway

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sameehj/gate/pkg/audit"
	"github.com/sameehj/gate/pkg/confirm"
	"github.com/sameehj/gate/pkg/execute"
	"github.com/sameehj/gate/pkg/gatekeeper"
	"github.com/sameehj/gate/pkg/mcp"
	"github.com/sameehj/gate/pkg/policy"
	"github.com/sameehj/gate/pkg/system"
)

func TestAllowlistAuthorizer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	open := AllowlistAuthorizer{}
	if err := open.Allow(ctx, "203.0.113.7:1234"); err != nil {
		t.Fatalf("empty allow-list must admit everyone: %v", err)
	}

	auth := AllowlistAuthorizer{Allowed: []string{"127.0.0.1", "10.0.0.5"}}
	if err := auth.Allow(ctx, "127.0.0.1:51234"); err != nil {
		t.Fatalf("expected loopback allowed: %v", err)
	}
	if err := auth.Allow(ctx, "10.0.0.5:80"); err != nil {
		t.Fatalf("expected listed host allowed: %v", err)
	}
	if err := auth.Allow(ctx, "203.0.113.7:1234"); err == nil {
		t.Fatalf("expected unlisted host denied")
	}
}

func newTestRPC(t *testing.T) *mcp.Server {
	t.Helper()
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(policyPath, []byte("commands:\n  - name: echo\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	store, err := policy.NewStore(policyPath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	log, err := audit.Open(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	gate := gatekeeper.New(store, confirm.NewBroker(time.Second, nil), &execute.Executor{
		DefaultTimeout: time.Second,
	}, log)
	return mcp.NewServer(gate, system.Detect())
}

func TestGatewayRoundTrip(t *testing.T) {
	t.Parallel()

	server := NewServer("127.0.0.1:0", newTestRPC(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	// Wait for the listener to bind.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && server.Addr() == "127.0.0.1:0" {
		time.Sleep(time.Millisecond)
	}

	conn, err := net.DialTimeout("tcp", server.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := mcp.NewClient(conn)
	result, err := client.Call("initialize", nil)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(result) == 0 {
		t.Fatalf("expected initialize result")
	}

	sessions := server.ListSessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	cancel()
	if err := <-errCh; err != nil && err != context.Canceled {
		t.Fatalf("unexpected server error: %v", err)
	}
}

func TestGatewaySessionLimit(t *testing.T) {
	t.Parallel()

	server := NewServer("127.0.0.1:0", newTestRPC(t), nil)
	server.SetMaxSessions(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = server.Start(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && server.Addr() == "127.0.0.1:0" {
		time.Sleep(time.Millisecond)
	}

	first, err := net.DialTimeout("tcp", server.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	if _, err := mcp.NewClient(first).Call("initialize", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// The second session is closed immediately at the cap.
	second, err := net.DialTimeout("tcp", server.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Fatalf("expected second session to be closed")
	}
}
