package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sydlexius/releasewire/internal/importer"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderSummary lists every outcome of a run, created first.
func renderSummary(sum *importer.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("Import %s", sum.RunID))
	tw.AppendHeader(table.Row{"Outcome", "Release"})

	for _, item := range sum.CreatedItems {
		tw.AppendRow(table.Row{"created", item})
	}
	for _, item := range sum.SkippedItems {
		tw.AppendRow(table.Row{"skipped", item})
	}
	for _, msg := range sum.ErrorMessages {
		tw.AppendRow(table.Row{"error", msg})
	}
	tw.AppendFooter(table.Row{"Total", fmt.Sprintf("%d created, %d skipped, %d errors", sum.Created, sum.Skipped, sum.Errors)})
	return tw.Render()
}
