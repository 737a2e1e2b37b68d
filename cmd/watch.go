package cmd

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
)

const defaultWatchSchedule = "@every 6h"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Collect and score on a cron schedule until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup()

		selected, _ := cmd.Flags().GetStringSlice("sources")
		noAI, _ := cmd.Flags().GetBool("no-ai")
		schedule, _ := cmd.Flags().GetString("schedule")
		if schedule == "" && env.config.Watch != nil {
			schedule = env.config.Watch.Schedule
		}
		if schedule == "" {
			schedule = defaultWatchSchedule
		}

		if err := watch(cmd.Context(), env, schedule, selected, scoreOptions{autoApprove: true, noAI: noAI}); err != nil {
			env.logger.Fatal("watching", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceP("sources", "s", nil, "collect only from the named sources (default is every enabled source)")
	watchCmd.Flags().String("schedule", "", "cron expression or descriptor such as @hourly (default is watch.schedule or @every 6h)")
	watchCmd.Flags().Bool("no-ai", false, "skip AI scoring, postings passing the quick filter end up ai-unavailable")
}

// watch runs collect and score on schedule until ctx is done. A failing run
// is logged and the next one still happens. Runs never overlap and share one
// scorer, so a memory score cache carries over between them.
func watch(ctx context.Context, env *environment, schedule string, selected []string, opts scoreOptions) error {
	cronLog := newCronLogger(env.logger)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		),
	)

	scorer, cleanup := prepareScorer(ctx, env, opts)
	defer cleanup()

	if _, err := c.AddFunc(schedule, scheduledRun(ctx, env, selected, opts, scorer)); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	env.logger.Info("watching", zap.String("schedule", schedule))
	c.Start()

	<-ctx.Done()
	env.logger.Info("stopping", zap.String("reason", ctx.Err().Error()))

	// wait for a run in progress
	<-c.Stop().Done()
	return nil
}

func scheduledRun(ctx context.Context, env *environment, selected []string, opts scoreOptions, scorer ai.Scorer) func() {
	return func() {
		env.logger.Info("scheduled run started")
		if err := run(ctx, env, selected, opts, scorer); err != nil {
			env.logger.Error("scheduled run failed", zap.Error(err))
		}
		env.flushMetrics()
	}
}

// cronLogger routes the scheduler's own messages into zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func newCronLogger(log *zap.Logger) cron.Logger {
	return cronLogger{log: log.Named("cron").Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
