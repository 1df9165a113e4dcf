// Package cmd defines the CLI of the hiscore crawler.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/app"
	"github.com/JakeFAU/hiscore-crawler/internal/config"
	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/pipeline"
	"github.com/JakeFAU/hiscore-crawler/internal/runner"
)

var (
	cfgFile   string
	activeApp App
)

type appKeyType string

const appKey appKeyType = "app"

// App is what the commands need from the application. Tests swap in a fake
// through newApp.
type App interface {
	Logger() *zap.Logger
	Execute(ctx context.Context, id uuid.UUID, req runner.Request) (crawler.RunSummary, error)
	MaxPage(ctx context.Context, account, category string) (pipeline.MaxPageReport, error)
	Lookup(ctx context.Context, account, username string) (*hiscore.PlayerRecord, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hiscore-crawler",
		Short: "Scrapes and filters Old School RuneScape hiscore leaderboards.",
		Long: `hiscore-crawler pages through hiscore leaderboards with a pool of
workers, writes the records in rank order and can look up every player on a
leaderboard to keep the ones matching stat filters.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			activeApp = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newScrapeCmd(),
		newFilterCmd(),
		newAnalyseCmd(),
		newMaxPageCmd(),
		newLookupCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// execute runs root and closes the app it opened, whether or not the
// command failed.
func execute(ctx context.Context, root *cobra.Command) error {
	defer closeApp()
	return root.ExecuteContext(ctx)
}

func closeApp() {
	if activeApp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = activeApp.Close(ctx)
	activeApp = nil
}

// Execute runs the CLI.
func Execute() {
	if err := execute(context.Background(), newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
