package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sameehj/gate/pkg/audit"
	"github.com/sameehj/gate/pkg/config"
	"github.com/sameehj/gate/pkg/confirm"
	"github.com/sameehj/gate/pkg/env"
	"github.com/sameehj/gate/pkg/execute"
	"github.com/sameehj/gate/pkg/gatekeeper"
	"github.com/sameehj/gate/pkg/gateway"
	"github.com/sameehj/gate/pkg/mcp"
	"github.com/sameehj/gate/pkg/policy"
	"github.com/sameehj/gate/pkg/runtime/logging"
	"github.com/sameehj/gate/pkg/system"
	"github.com/sameehj/gate/pkg/version"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	_ = env.LoadFromDir(".")

	root := &cobra.Command{
		Use:   "gate",
		Short: "Command-execution gatekeeper",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.gate/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(runCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(commandsCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(policyCmd())
	root.AddCommand(approvalsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup wires the gatekeeper pipeline from configuration. notifier may be
// nil; it is attached to the broker for interactive approval surfaces.
func setup(notifier confirm.Notifier) (*gatekeeper.Gatekeeper, *config.Config, *slog.Logger, error) {
	path := cfgFile
	if path == "" {
		if candidate := config.DefaultConfigPath(); fileExists(candidate) {
			path = candidate
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(cfg.LogLevel, os.Getenv("GATE_LOG_FORMAT"))

	store, err := policy.NewStore(cfg.PolicyPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		return nil, nil, nil, err
	}
	broker := confirm.NewBroker(cfg.ConfirmationTimeout(), notifier)
	executor := &execute.Executor{
		DefaultTimeout:   cfg.ExecTimeout(),
		DefaultMaxOutput: cfg.Exec.MaxOutput,
	}

	gate := gatekeeper.New(store, broker, executor, log)
	gate.SetLogger(logger)
	user := cfg.User
	if user == "" {
		user = system.Detect().Username
	}
	gate.SetUser(user)
	return gate, cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gatekeeper over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _, logger, err := setup(pendingLogger())
			if err != nil {
				return err
			}
			server := mcp.NewServer(gate, system.Detect())
			server.SetLogger(logger)
			ctx, cancel := signalContext()
			defer cancel()
			return server.ServeStdio(ctx)
		},
	}
}

func gatewayCmd() *cobra.Command {
	var addr string
	var maxSessions int

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve the gatekeeper over TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, cfg, logger, err := setup(pendingLogger())
			if err != nil {
				return err
			}
			server := mcp.NewServer(gate, system.Detect())
			server.SetLogger(logger)

			if addr == "" {
				addr = cfg.Gateway.Address
			}
			gw := gateway.NewServer(addr, server, gateway.AllowlistAuthorizer{Allowed: cfg.Gateway.AllowedAddrs})
			gw.SetLogger(logger)
			if maxSessions == 0 {
				maxSessions = cfg.Gateway.MaxSessions
			}
			if maxSessions > 0 {
				gw.SetMaxSessions(maxSessions)
			}

			ctx, cancel := signalContext()
			defer cancel()
			if err := gw.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "gateway listen address")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", 0, "maximum concurrent sessions (0 = unlimited)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}
}

// pendingLogger surfaces pending confirmations to stderr so an operator
// watching the server knows a request is waiting.
func pendingLogger() confirm.Notifier {
	return confirm.NotifierFunc(func(req confirm.Request) {
		fmt.Fprintf(os.Stderr, "confirmation pending: id=%s command=%s risk=%s\n",
			req.ID, req.Command, req.Risk)
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
