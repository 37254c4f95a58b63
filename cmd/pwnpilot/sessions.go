package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			infos, err := session.ListSessions(cfg.Session.Dir)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No saved sessions.")
				return nil
			}
			for _, info := range infos {
				model := info.ModelID
				if model == "" {
					model = "unknown model"
				}
				fmt.Printf("%s  %s  %s  %d bytes\n", info.SessionID, info.Modified, model, info.Size)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !session.Exists(cfg.Session.Dir, args[0]) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err := session.Delete(cfg.Session.Dir, args[0]); err != nil {
				return err
			}
			fmt.Printf("Session %s deleted.\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(deleteCmd)
	return cmd
}
