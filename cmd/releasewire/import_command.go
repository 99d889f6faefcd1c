package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sydlexius/releasewire/internal/importer"
)

func newImportCommand(g *globals) *cobra.Command {
	var principal string
	var link string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run one import over the configured sources or a single link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), g.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if principal == "" {
				principal = a.cfg.Import.PrincipalID
			}

			stdout := cmd.OutOrStdout()
			stderr := cmd.ErrOrStderr()
			var l importer.Listener
			if !asJSON && isTerminal(stderr) {
				l = progressPrinter(stderr)
			}

			sum, err := a.runner.Run(cmd.Context(), principal, strings.TrimSpace(link), l)
			if l != nil {
				fmt.Fprintln(stderr)
			}
			if err != nil {
				return err
			}

			if asJSON || !isTerminal(stdout) {
				return writeJSON(cmd, sum)
			}
			fmt.Fprintln(stdout, renderSummary(sum))
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "Principal recorded as the importer (default import.principal_id)")
	cmd.Flags().StringVar(&link, "link", "", "Import a single release link instead of the configured sources")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

// progressPrinter rewrites a single status line as snapshots arrive.
func progressPrinter(w io.Writer) importer.Listener {
	return importer.ListenerFunc(func(s importer.Snapshot) {
		switch s.Stage {
		case importer.StageFetching:
			fmt.Fprint(w, "\r\033[KDiscovering candidates...")
		case importer.StageImporting:
			label := s.CurrentLabel
			if len(label) > 60 {
				label = label[:57] + "..."
			}
			fmt.Fprintf(w, "\r\033[K[%d/%d] %s", s.Current, s.Total, label)
		case importer.StageComplete:
			fmt.Fprintf(w, "\r\033[KDone: %d created, %d skipped, %d errors", len(s.Created), len(s.Skipped), len(s.Errors))
		}
	})
}
