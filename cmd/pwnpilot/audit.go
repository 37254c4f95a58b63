package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Jawbreaker1/pwnpilot/internal/audit"
	"github.com/Jawbreaker1/pwnpilot/internal/session"
)

func newAuditCmd(flags *rootFlags) *cobra.Command {
	var (
		asJSON     bool
		showOutput bool
	)

	cmd := &cobra.Command{
		Use:   "audit <session-id>",
		Short: "Extract the command audit trail from a session log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			id := args[0]
			if !session.Exists(cfg.Session.Dir, id) {
				return fmt.Errorf("session %s not found", id)
			}
			records, err := audit.Extract(filepath.Join(cfg.Session.Dir, id+".jsonl"))
			if err != nil {
				return err
			}
			if asJSON {
				out, err := audit.FormatJSON(id, records)
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			fmt.Println(audit.FormatText(id, records, showOutput))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the audit trail as JSON")
	cmd.Flags().BoolVar(&showOutput, "output", true, "Include command output in the text report")
	return cmd
}
