package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect postings and score them in one go",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup()
		defer env.flushMetrics()

		selected, _ := cmd.Flags().GetStringSlice("sources")
		opts := scoreFlags(cmd)

		scorer, cleanup := prepareScorer(cmd.Context(), env, opts)
		defer cleanup()

		if err := run(cmd.Context(), env, selected, opts, scorer); err != nil {
			env.logger.Fatal("exiting", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceP("sources", "s", nil, "collect only from the named sources (default is every enabled source)")
	addScoreFlags(runCmd)
}

// run is the main command for the cli.
func run(ctx context.Context, env *environment, selected []string, opts scoreOptions, scorer ai.Scorer) error {
	st, err := collect(ctx, env, selected)
	if err != nil {
		return err
	}

	if st.Len() == 0 {
		env.logger.Info("exiting", zap.String("reason", "no postings stored"))
		return nil
	}

	rep, err := score(ctx, env, st, opts, scorer)
	if err != nil {
		return err
	}

	if len(rep.Matched) == 0 {
		env.logger.Info("exiting", zap.String("reason", "no postings matched"))
		return nil
	}

	return interact(env, rep, opts)
}
