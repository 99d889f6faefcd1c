package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sydlexius/releasewire/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "releasewire %s (%s)\n", version.Version, version.Commit)
		},
	}
}
