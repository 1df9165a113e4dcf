package cmd

import (
	"github.com/spf13/cobra"
)

func newMaxPageCmd() *cobra.Command {
	var account, category string
	cmd := &cobra.Command{
		Use:   "max-page",
		Short: "Finds the last page and rank of a leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.MaxPage(cmd.Context(), account, category)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account type (default from config)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "leaderboard category")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newLookupCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "lookup <username>",
		Short: "Prints one player's stat sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := appInstance.Lookup(cmd.Context(), account, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account type (default from config)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API that queues and tracks runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context())
		},
	}
}
