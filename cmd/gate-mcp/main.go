package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sameehj/gate/pkg/audit"
	"github.com/sameehj/gate/pkg/config"
	"github.com/sameehj/gate/pkg/confirm"
	"github.com/sameehj/gate/pkg/execute"
	"github.com/sameehj/gate/pkg/gatekeeper"
	"github.com/sameehj/gate/pkg/mcp"
	"github.com/sameehj/gate/pkg/policy"
	"github.com/sameehj/gate/pkg/runtime/logging"
	"github.com/sameehj/gate/pkg/system"
	"github.com/spf13/pflag"
)

var cfgFile string

// gate-mcp is the minimal stdio-only entrypoint for desktop MCP clients.
func main() {
	pflag.StringVar(&cfgFile, "config", "", "config file (default: ~/.gate/config.yaml)")
	pflag.Parse()

	if cfgFile == "" {
		if candidate := config.DefaultConfigPath(); exists(candidate) {
			cfgFile = candidate
		}
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, os.Getenv("GATE_LOG_FORMAT"))

	store, err := policy.NewStore(cfg.PolicyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	profile := system.Detect()
	broker := confirm.NewBroker(cfg.ConfirmationTimeout(), confirm.NotifierFunc(func(req confirm.Request) {
		fmt.Fprintf(os.Stderr, "confirmation pending: id=%s command=%s risk=%s\n",
			req.ID, req.Command, req.Risk)
	}))
	executor := &execute.Executor{
		DefaultTimeout:   cfg.ExecTimeout(),
		DefaultMaxOutput: cfg.Exec.MaxOutput,
	}

	gate := gatekeeper.New(store, broker, executor, log)
	gate.SetLogger(logger)
	user := cfg.User
	if user == "" {
		user = profile.Username
	}
	gate.SetUser(user)

	server := mcp.NewServer(gate, profile)
	server.SetLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := server.ServeStdio(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
