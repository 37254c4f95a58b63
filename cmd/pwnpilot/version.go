package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pwnpilot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pwnpilot %s\n", version)
		},
	}
}
