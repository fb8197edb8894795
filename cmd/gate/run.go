package main

import (
	"fmt"
	"os"

	"github.com/sameehj/gate/pkg/confirm"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Execute one command through the gatekeeper with a terminal prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompter := &confirm.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
			gate, _, _, err := setup(prompter)
			if err != nil {
				return err
			}
			prompter.Broker = gate.Broker()

			output, err := gate.Execute(cmd.Context(), args[0], args[1:])
			if output != "" {
				fmt.Print(output)
			}
			return err
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <command> [args...]",
		Short: "Check whether a command would pass validation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _, _, err := setup(nil)
			if err != nil {
				return err
			}
			if err := gate.Check(args[0], args[1:]); err != nil {
				return err
			}
			fmt.Println("allowed")
			return nil
		},
	}
}

func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List allowed commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _, _, err := setup(nil)
			if err != nil {
				return err
			}
			for _, name := range gate.ListAllowedCommands() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _, _, err := setup(nil)
			if err != nil {
				return err
			}
			text, err := gate.AuditText(limit)
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show only the newest N records (0 = all)")
	return cmd
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Policy management"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the loaded allow-list",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, cfg, _, err := setup(nil)
			if err != nil {
				return err
			}
			source := cfg.PolicyPath
			if source == "" {
				source = "$ALLOWED_COMMANDS"
			}
			fmt.Printf("source: %s\n", source)
			for _, name := range gate.ListAllowedCommands() {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload the policy source",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _, _, err := setup(nil)
			if err != nil {
				return err
			}
			if err := gate.ReloadPolicy(); err != nil {
				return err
			}
			fmt.Printf("loaded %d commands\n", len(gate.ListAllowedCommands()))
			return nil
		},
	})

	return cmd
}
