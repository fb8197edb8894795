package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sameehj/gate/pkg/confirm"
	"github.com/sameehj/gate/pkg/config"
	"github.com/sameehj/gate/pkg/mcp"
	"github.com/spf13/cobra"
)

// approvalsCmd drives a running gateway over TCP: list pending
// confirmations and deliver decisions from an operator terminal.
func approvalsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{Use: "approvals", Short: "Manage pending confirmations on a running gateway"}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "gateway address (default from config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending confirmations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := dialGateway(addr)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := client.Call("gate/approvals/list", nil)
			if err != nil {
				return err
			}
			var payload struct {
				Pending []confirm.Request `json:"pending"`
			}
			if err := json.Unmarshal(result, &payload); err != nil {
				return err
			}
			if len(payload.Pending) == 0 {
				fmt.Println("no pending confirmations")
				return nil
			}
			for _, req := range payload.Pending {
				fmt.Printf("%s  %s %v  risk=%s  requested=%s\n",
					req.ID, req.Command, req.Args, req.Risk, req.RequestedAt.Format(time.RFC3339))
			}
			return nil
		},
	})

	cmd.AddCommand(resolveCmd("approve", "approved", true, &addr))
	cmd.AddCommand(resolveCmd("deny", "denied", false, &addr))
	return cmd
}

func resolveCmd(name, past string, approve bool, addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <request-id>",
		Short: name + " a pending confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := dialGateway(*addr)
			if err != nil {
				return err
			}
			defer closeFn()

			if _, err := client.Call("gate/approvals/resolve", map[string]any{
				"id":      args[0],
				"approve": approve,
			}); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", past, args[0])
			return nil
		},
	}
}

func dialGateway(addr string) (*mcp.Client, func(), error) {
	if addr == "" {
		path := cfgFile
		if path == "" {
			if candidate := config.DefaultConfigPath(); fileExists(candidate) {
				path = candidate
			}
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		addr = cfg.Gateway.Address
	}
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("dial gateway %s: %w", addr, err)
	}
	return mcp.NewClient(conn), func() { _ = conn.Close() }, nil
}
