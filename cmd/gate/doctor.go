package main

import (
	"fmt"

	"github.com/sameehj/gate/pkg/system"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the gatekeeper setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := system.Detect()
			fmt.Printf("host: %s (%s/%s) user=%s\n", profile.Hostname, profile.OS, profile.Arch, profile.Username)

			gate, cfg, _, err := setup(nil)
			if err != nil {
				return err
			}
			source := cfg.PolicyPath
			if source == "" {
				source = "$ALLOWED_COMMANDS"
			}
			fmt.Printf("policy source: %s (%d commands)\n", source, len(gate.ListAllowedCommands()))
			fmt.Printf("audit log: %s\n", cfg.AuditLogPath)
			fmt.Printf("confirmation timeout: %s\n", cfg.ConfirmationTimeout())
			return nil
		},
	}
}
