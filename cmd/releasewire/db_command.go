package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/sydlexius/releasewire/internal/backup"
	"github.com/sydlexius/releasewire/internal/maintenance"
)

var errNotSQLite = errors.New("catalog maintenance is only available for the sqlite driver")

func newDBCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect, optimize and back up the sqlite catalog",
	}
	cmd.AddCommand(newDBStatusCommand(g))
	cmd.AddCommand(newDBOptimizeCommand(g))
	cmd.AddCommand(newDBBackupCommand(g))
	cmd.AddCommand(newDBBackupsCommand(g))
	return cmd
}

// withSQLite opens the base app and fails unless the catalog is sqlite.
func withSQLite(cmd *cobra.Command, g *globals, fn func(a *app) error) error {
	a, err := newBaseApp(cmd.Context(), g.configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.sqlDB == nil {
		return errNotSQLite
	}
	return fn(a)
}

func (a *app) maintenance() *maintenance.Service {
	return maintenance.NewService(a.sqlDB, a.cfg.Database.Path, a.logger)
}

func (a *app) backups() *backup.Service {
	return backup.NewService(a.sqlDB, a.cfg.Database.BackupDir, a.cfg.Database.BackupRetention, a.logger)
}

func newDBStatusCommand(g *globals) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog size and row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSQLite(cmd, g, func(a *app) error {
				st, err := a.maintenance().Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, st)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDBStatus(st))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print status as JSON")
	return cmd
}

func newDBOptimizeCommand(g *globals) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run PRAGMA optimize and checkpoint the WAL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSQLite(cmd, g, func(a *app) error {
				svc := a.maintenance()
				if err := svc.Optimize(cmd.Context()); err != nil {
					return err
				}
				if vacuum {
					if err := svc.Vacuum(cmd.Context()); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog optimized.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Also rebuild the database file")
	return cmd
}

func newDBBackupCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the catalog and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSQLite(cmd, g, func(a *app) error {
				svc := a.backups()
				snap, err := svc.Backup(cmd.Context())
				if err != nil {
					return err
				}
				removed, err := svc.Prune()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes); pruned %d old snapshot(s).\n", snap.Filename, snap.Size, removed)
				return nil
			})
		},
	}
}

func newDBBackupsCommand(g *globals) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List catalog snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSQLite(cmd, g, func(a *app) error {
				snaps, err := a.backups().List()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, snaps)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSnapshots(snaps))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print snapshots as JSON")
	return cmd
}

func renderDBStatus(st *maintenance.Status) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Catalog")
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	lastOpt := "never"
	if !st.LastOptimizeAt.IsZero() {
		lastOpt = st.LastOptimizeAt.Format(time.RFC3339)
	}
	tw.AppendRows([]table.Row{
		{"Releases", st.Releases},
		{"Artists", st.Artists},
		{"Tracks", st.Tracks},
		{"File size", st.DBFileSize},
		{"WAL size", st.WALFileSize},
		{"Pages", fmt.Sprintf("%d x %d", st.PageCount, st.PageSize)},
		{"Free pages", st.FreePages},
		{"Last optimize", lastOpt},
	})
	return tw.Render()
}

func renderSnapshots(snaps []backup.Snapshot) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Snapshot", "Size", "Created"})
	for _, s := range snaps {
		tw.AppendRow(table.Row{s.Filename, s.Size, s.CreatedAt.Format(time.RFC3339)})
	}
	tw.AppendFooter(table.Row{"Total", len(snaps), ""})
	return tw.Render()
}
