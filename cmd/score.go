package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/filtering"
	"github.com/spigell/job-sift/internal/pipeline"
	"github.com/spigell/job-sift/internal/report"
	"github.com/spigell/job-sift/internal/store"
)

const (
	PromptShowMatched      = "Show matched postings"
	PromptReportByCompany  = "Report by companies"
	PromptReportBySource   = "Report by sources"
	PromptPostingsToFile   = "Dump report to file"
	PromptExit             = "Exit"
	PromptBack             = "back"
	reportTmpPattern       = "job-sift-report-*.json"
	matchedLabelTitleLimit = 60
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowMatched, PromptReportByCompany, PromptReportBySource, PromptPostingsToFile, PromptExit},
}

// scoreOptions are the command line switches shared by score, run and watch.
type scoreOptions struct {
	autoApprove bool
	noAI        bool
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score the stored postings against the profile and write the report",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup()
		defer env.flushMetrics()

		st, err := store.Load(env.config.StorePath, store.WithLogger(env.logger))
		if err != nil {
			env.logger.Fatal("loading store", zap.Error(err))
		}

		opts := scoreFlags(cmd)
		scorer, cleanup := prepareScorer(cmd.Context(), env, opts)
		defer cleanup()

		rep, err := score(cmd.Context(), env, st, opts, scorer)
		if err != nil {
			env.logger.Fatal("scoring postings", zap.Error(err))
		}

		if err := interact(env, rep, opts); err != nil {
			env.logger.Fatal("exiting", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	addScoreFlags(scoreCmd)
}

func addScoreFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("auto-approve", "y", false, "do not ask what to do with the report")
	cmd.Flags().Bool("no-ai", false, "skip AI scoring, postings passing the quick filter end up ai-unavailable")
}

func scoreFlags(cmd *cobra.Command) scoreOptions {
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	noAI, _ := cmd.Flags().GetBool("no-ai")
	return scoreOptions{autoApprove: autoApprove, noAI: noAI}
}

// score runs the filtering stages over st and writes the report. A nil
// scorer leaves every passed posting ai-unavailable.
func score(ctx context.Context, env *environment, st *store.Store, opts scoreOptions, scorer ai.Scorer) (report.Report, error) {
	prof, err := resolveProfile(env.config)
	if err != nil {
		return report.Report{}, fmt.Errorf("resolving profile: %w", err)
	}

	aiConfig := env.config.AI
	steps := filtering.DefaultSteps()
	if opts.noAI {
		aiConfig = nil
		filtering.DisableByName(steps, filtering.AIFitName, "disabled by --no-ai")
	}

	for _, status := range filtering.Describe(steps) {
		env.logger.Debug("filter configured",
			zap.String("filter", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
		)
	}

	workers := 0
	if aiConfig != nil {
		workers = aiConfig.Workers
	}

	p := pipeline.New(st, env.logger, env.metrics)
	rep, err := p.Score(ctx, pipeline.ScoreConfig{
		Profile: prof,
		Scorer:  scorer,
		Workers: workers,
		Steps:   steps,
	})
	if err != nil {
		return report.Report{}, err
	}

	if err := report.Write(env.config.ReportPath, rep); err != nil {
		return report.Report{}, err
	}
	env.logger.Info("report written", zap.String("filename", env.config.ReportPath), zap.String("run_id", rep.RunID))

	return rep, nil
}

// interact shows the action prompt until the user exits. Auto approve skips it.
func interact(env *environment, rep report.Report, opts scoreOptions) error {
	if opts.autoApprove {
		return nil
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if err := handleAction(action, env.logger, rep); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return err
		}
	}
}

func handleAction(action string, logger *zap.Logger, rep report.Report) error {
	switch action {
	case PromptShowMatched:
		return showMatched(logger, rep.Matched)
	case PromptReportByCompany:
		pretty, _ := json.MarshalIndent(rep.ByCompany, "", "  ")
		logger.Info(string(pretty), zap.Int("companies count", len(rep.ByCompany)))
		return nil
	case PromptReportBySource:
		pretty, _ := json.MarshalIndent(rep.SummaryBySource, "", "  ")
		logger.Info(string(pretty), zap.Int("sources count", len(rep.SummaryBySource)))
		return nil
	case PromptPostingsToFile:
		filename, err := report.DumpToTmpFile(reportTmpPattern, rep)
		if err != nil {
			return fmt.Errorf("dump report to file: %w", err)
		}
		logger.Info("dumping report to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// showMatched lists matched postings and prints the chosen one in full.
func showMatched(logger *zap.Logger, matched []filtering.Result) error {
	if len(matched) == 0 {
		logger.Info("no matched postings")
		return nil
	}

	items := make([]string, 0, len(matched)+1)
	for _, res := range matched {
		items = append(items, matchedLabel(res))
	}

	postingPrompt := promptui.Select{
		Label: "Choose a posting and press ENTER",
		Items: append(items, PromptBack),
		Size:  10,
	}

	for {
		idx, selected, err := postingPrompt.Run()
		if err != nil {
			return err
		}
		if selected == PromptBack {
			return nil
		}

		pretty, _ := json.MarshalIndent(matched[idx], "", "  ")
		logger.Info(string(pretty), zap.String("url", matched[idx].Posting.URL))
	}
}

func matchedLabel(res filtering.Result) string {
	final := 0
	if res.FinalScore != nil {
		final = *res.FinalScore
	}

	title := []rune(res.Posting.Title)
	if len(title) > matchedLabelTitleLimit {
		title = append(title[:matchedLabelTitleLimit], '.', '.', '.')
	}

	return fmt.Sprintf("[%2d] %s / %s / %s", final, string(title), res.Posting.Company, res.Posting.URL)
}
