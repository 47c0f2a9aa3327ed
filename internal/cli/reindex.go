package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/shopindex/internal/domain"
)

func newReindexCommand(e *env) *cobra.Command {
	var (
		typeNames []string
		batchSize int
		loaders   int
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the indices from the record store",
		Long: `Runs a mass reindex in the foreground and waits for it to finish.
Without --types every entity type is rebuilt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, err := domain.ParseEntityTypes(typeNames)
			if err != nil {
				return err
			}
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if batchSize > 0 {
				cfg.ReindexBatchSize = batchSize
			}
			if loaders > 0 {
				cfg.ReindexLoaderThreads = loaders
			}
			log := e.logger(cfg)

			ctx := cmd.Context()
			core, err := e.newCore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close(ctx) }()

			job, err := core.Reindexer.ReindexAll(ctx, types...)
			if err != nil {
				return err
			}
			log.Info("reindex started", slog.String("job_id", job.ID().String()))

			select {
			case <-job.Done():
			case <-ctx.Done():
				// Close cancels the running job.
				return ctx.Err()
			}

			snap := job.Snapshot()
			out := cmd.OutOrStdout()
			for _, p := range snap.Progress {
				status := "ok"
				if p.Failed {
					status = "FAILED: " + p.Error
				}
				fmt.Fprintf(out, "%-10s processed=%d indexed=%d skipped=%d batches=%d %s\n",
					p.Type, p.Processed, p.Indexed, p.Skipped, p.Batches, status)
			}
			fmt.Fprintf(out, "job %s %s in %dms\n", snap.ID, snap.Status, snap.ElapsedMs)

			if snap.Status != domain.JobSucceeded {
				return fmt.Errorf("reindex %s: %s", snap.Status, snap.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "entity types to rebuild (default all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per batch (overrides REINDEX_BATCH_SIZE)")
	cmd.Flags().IntVar(&loaders, "loader-threads", 0, "concurrent batch loaders per type (overrides REINDEX_LOADER_THREADS)")
	return cmd
}
