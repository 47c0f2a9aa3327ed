// Package cli implements indexctl, the operator command line for shopindex.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/shopindex/internal/app"
	"github.com/utafrali/shopindex/internal/config"
	"github.com/utafrali/shopindex/pkg/logger"
)

// env carries what every subcommand needs.
type env struct {
	loadConfig func() (*config.Config, error)
	newCore    func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Core, error)
	logLevel   string
	logOutput  io.Writer
}

func (e *env) logger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if e.logLevel != "" {
		level = e.logLevel
	}
	return logger.NewWithOptions(logger.Options{
		Service: "indexctl",
		Level:   level,
		Format:  "text",
		Writer:  e.logOutput,
	})
}

// NewRootCommand builds the indexctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&env{loadConfig: config.Load, newCore: app.NewCore})
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "indexctl",
		Short: "Operate the shopindex search indices",
		Long: `indexctl rebuilds and queries the shopindex search indices.
It reads the same environment variables as the server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if e.logOutput == nil {
				e.logOutput = cmd.ErrOrStderr()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		newReindexCommand(e),
		newSearchCommand(e),
		newMigrateCommand(e),
		newSeedCommand(e),
	)
	return root
}

// Execute runs indexctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
