package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/gdopt/internal/optimization/objectives"
)

func newObjectivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "objectives",
		Short: "List the built-in objectives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range objectives.Names() {
				desc, _ := objectives.Describe(name)
				fmt.Fprintf(out, "%-14s %s\n", name, desc)
			}
			return nil
		},
	}
}
