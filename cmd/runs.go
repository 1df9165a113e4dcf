package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/pipeline"
	"github.com/JakeFAU/hiscore-crawler/internal/runner"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
)

type rangeFlags struct {
	account   string
	category  string
	startRank int
	endRank   int
	output    string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.account, "account", "a", "", "account type: regular, pure, im, uim, hc or skiller (default from config)")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "leaderboard category, e.g. overall or zulrah")
	cmd.Flags().IntVar(&f.startRank, "start-rank", 1, "first rank to include")
	cmd.Flags().IntVar(&f.endRank, "end-rank", 0, "last rank to include, 0 for the end of the leaderboard")
	cmd.Flags().StringVarP(&f.output, "output", "o", sink.Stdout, "output file, - for stdout")
}

func (f *rangeFlags) request(command string) runner.Request {
	return runner.Request{
		Command:   command,
		Account:   f.account,
		Category:  f.category,
		StartRank: f.startRank,
		EndRank:   f.endRank,
		Output:    f.output,
	}
}

func newScrapeCmd() *cobra.Command {
	var flags rangeFlags
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Writes every record of a leaderboard rank range in rank order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRequest(cmd, flags.request(pipeline.CommandScrape))
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newFilterCmd() *cobra.Command {
	var (
		flags   rangeFlags
		filters []string
		input   string
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Looks up the players of a leaderboard and keeps those matching every filter",
		Long: `filter scans a leaderboard (or a JSON lines file of records given with
--input), fetches every player's stat sheet and writes the ones that pass all
filters in rank order. Filters look like "attack<60" or "zulrah>=100".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" && flags.category == "" {
				return fmt.Errorf("either --category or --input is required")
			}
			req := flags.request(pipeline.CommandFilter)
			req.Filters = filters
			req.Input = input
			return runRequest(cmd, req)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "stat filter, repeatable")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON lines file of leaderboard records to filter instead of scanning")
	_ = cmd.MarkFlagRequired("filter")
	return cmd
}

func newAnalyseCmd() *cobra.Command {
	var flags rangeFlags
	cmd := &cobra.Command{
		Use:     "analyse",
		Aliases: []string{"analyze"},
		Short:   "Summarises the scores of a leaderboard rank range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRequest(cmd, flags.request(pipeline.CommandAnalyse))
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func runRequest(cmd *cobra.Command, req runner.Request) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := appInstance.Execute(ctx, uuid.Nil, req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Command, err)
	}
	appInstance.Logger().Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.String("command", summary.Command),
		zap.Int("items", summary.Items),
		zap.String("output", summary.Output),
		zap.String("archive", summary.ArchiveURI),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return nil
}

// printJSON writes v as one JSON line to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	return sink.NewLinesWriter(cmd.OutOrStdout()).Write(context.Background(), v)
}
