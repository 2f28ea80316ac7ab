package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/backfill"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/smallbiznis/retailsales/internal/rollup/export"
	"github.com/smallbiznis/retailsales/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "retailsales",
		Short:         "Incremental sales rollups and customer address history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newServeCmd(),
		newBackfillCmd(),
		newFactsCmd(),
		newSCDCmd(),
		newExportCmd(),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), func(ctx context.Context) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and keep rollups caught up",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				server.Module,
				backfill.WorkerModule,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newBackfillCmd() *cobra.Command {
	var (
		tables   []string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Materialize rollup periods in order",
		Long: `Materialize every period from --from through --to for the given tables.
Committed periods are skipped. A period whose predecessor is not committed
stops that table and the command exits with status 1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseStart(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parseEnd(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			var driver *backfill.Driver
			return runTask(cmd.Context(), func(ctx context.Context) error {
				report, runErr := driver.Run(ctx, backfill.Request{Tables: tables, From: start, To: end})
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if errors.Is(runErr, domain.ErrOutOfOrderPeriod) {
					return fmt.Errorf("backfill stopped on an out-of-order period: %w", runErr)
				}
				return runErr
			}, &driver)
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil, "rollup table (repeatable, default all enabled tables)")
	cmd.Flags().StringVar(&from, "from", "", "first period, YYYY-MM-DD or YYYY")
	cmd.Flags().StringVar(&to, "to", "", "last period, YYYY-MM-DD or YYYY")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newExportCmd() *cobra.Command {
	var table, p, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one committed period of a rollup table to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := out
			if path == "" {
				path = export.FileName(table, p)
			} else if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, export.FileName(table, p))
			}

			var exporter *export.Exporter
			return runTask(cmd.Context(), func(ctx context.Context) error {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				rows, err := exporter.Export(ctx, table, p, f)
				if closeErr := f.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					_ = os.Remove(path)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", rows, path)
				return nil
			}, &exporter)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "rollup table")
	cmd.Flags().StringVar(&p, "period", "", "committed period, YYYY-MM-DD or YYYY")
	cmd.Flags().StringVar(&out, "out", "", "output file or directory")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

// parseStart reads YYYY-MM-DD or YYYY as the first instant of that period.
func parseStart(raw string) (time.Time, error) {
	p, err := period.ParseAny(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return p.Start(), nil
}

// parseEnd reads YYYY-MM-DD or YYYY as the last day of that period.
func parseEnd(raw string) (time.Time, error) {
	p, err := period.ParseAny(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return p.End().AddDate(0, 0, -1), nil
}
