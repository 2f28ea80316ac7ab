package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	factdomain "github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/spf13/cobra"
)

func newFactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Manage sales facts",
	}
	cmd.AddCommand(newFactsImportCmd())
	return cmd
}

func newFactsImportCmd() *cobra.Command {
	var file, format string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a csv or xlsx sales feed; any invalid row rejects the whole file",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedFormat, err := resolveFeedFormat(file, format)
			if err != nil {
				return err
			}

			var facts factdomain.Service
			return runTask(cmd.Context(), func(ctx context.Context) error {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()

				result, err := facts.ImportFeed(ctx, feedFormat, f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &facts)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "feed file")
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx (default from the file extension)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func resolveFeedFormat(file, format string) (factdomain.FeedFormat, error) {
	value := strings.ToLower(strings.TrimSpace(format))
	if value == "" {
		value = strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	}
	switch factdomain.FeedFormat(value) {
	case factdomain.FeedCSV, factdomain.FeedXLSX:
		return factdomain.FeedFormat(value), nil
	default:
		return "", fmt.Errorf("%w: %q", factdomain.ErrInvalidFeedFormat, value)
	}
}
