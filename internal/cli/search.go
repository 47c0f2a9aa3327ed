package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utafrali/shopindex/pkg/pagination"
)

func newSearchCommand(e *env) *cobra.Command {
	var (
		page   int
		size   int
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "search <resource> [query]",
		Short: "Query an index",
		Long: `Runs a query against the index of one resource and prints the hits
as JSON lines. An empty query matches everything.`,
		Example: `  indexctl search addresses postcode:AB12
  indexctl search customers 'addresses.city:York' --fields id,email`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := pagination.New(page, size)
			if err != nil {
				return err
			}
			var query string
			if len(args) == 2 {
				query = args[1]
			}

			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			core, err := e.newCore(ctx, cfg, e.logger(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = core.Close(ctx) }()

			var result pagination.Result[json.RawMessage]
			if len(fields) > 0 {
				result, err = core.Search.SearchProjection(ctx, args[0], query, fields, params)
			} else {
				result, err = core.Search.Search(ctx, args[0], query, params)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(result.Data) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			for _, hit := range result.Data {
				fmt.Fprintln(out, string(hit))
			}
			cmd.PrintErrf("page %d of %d, %d total\n", result.Page+1, result.TotalPages, result.TotalCount)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page")
	cmd.Flags().IntVarP(&size, "size", "n", pagination.DefaultSize, "hits per page")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "project hits onto these fields")
	return cmd
}
