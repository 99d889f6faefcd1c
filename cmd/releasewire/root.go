package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "/data/config.yaml"

type globals struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "releasewire",
		Short:         "Discover, resolve and catalog new music releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if g.configPath == "" {
				g.configPath = os.Getenv("RW_CONFIG_PATH")
			}
			if g.configPath == "" {
				g.configPath = defaultConfigPath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			cobra.OnFinalize(stop)
			cmd.SetContext(ctx)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetContext(context.Background())

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Configuration file path (default $RW_CONFIG_PATH or "+defaultConfigPath+")")

	rootCmd.AddCommand(newMigrateCommand(g))
	rootCmd.AddCommand(newImportCommand(g))
	rootCmd.AddCommand(newServeCommand(g))
	rootCmd.AddCommand(newDBCommand(g))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
