package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/pipeline"
	"github.com/spigell/job-sift/internal/store"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch postings from the configured sources and merge them into the store",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup()
		defer env.flushMetrics()

		selected, _ := cmd.Flags().GetStringSlice("sources")
		if _, err := collect(cmd.Context(), env, selected); err != nil {
			env.logger.Fatal("collecting postings", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringSliceP("sources", "s", nil, "collect only from the named sources (default is every enabled source)")
}

// collect loads the store, runs every selected source and saves the result.
// A failing source is logged and does not fail the command.
func collect(ctx context.Context, env *environment, selected []string) (*store.Store, error) {
	st, err := store.Load(env.config.StorePath, store.WithLogger(env.logger))
	if err != nil {
		return nil, fmt.Errorf("loading store: %w", err)
	}
	env.logger.Info("store loaded", zap.String("filename", env.config.StorePath), zap.Int("count", st.Len()))

	sources, err := buildSources(env.config, env.logger, selected)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(st, env.logger, env.metrics)
	p.Fetch = env.config.Fetch

	summary, err := p.Collect(ctx, sources, env.config.Criteria)
	if err != nil {
		return nil, err
	}

	for _, name := range summary.FailedSources() {
		outcome := summary.Outcomes[name]
		env.logger.Warn("source failed",
			zap.String("source", name),
			zap.String("kind", string(outcome.Failure.Kind)),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Failure),
		)
	}

	env.logger.Info("collection finished",
		zap.Int("sources", len(sources)),
		zap.Int("failed", len(summary.FailedSources())),
		zap.Int("added", summary.Merge.Added),
		zap.Int("updated", summary.Merge.Updated),
		zap.Int("unchanged", summary.Merge.Unchanged),
		zap.Int("dropped", summary.Dropped.Total),
		zap.Int("stored", st.Len()),
	)

	if err := st.Save(env.config.StorePath); err != nil {
		return nil, fmt.Errorf("saving store: %w", err)
	}

	return st, nil
}
