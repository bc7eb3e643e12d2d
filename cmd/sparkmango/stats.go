package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i-dream-of-ai/sparkmango/pkg/tracker"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		contract string
		runs     bool
		runID    string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			ctx := context.Background()

			// Run detail view
			if runID != "" {
				reqs, err := tr.RunRequests(ctx, runID)
				if err != nil {
					return err
				}
				if len(reqs) == 0 {
					fmt.Println("No requests found for run.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tFUNCTION\tMODEL\tPROMPT\tCOMPLETION\tTOTAL")
				for _, r := range reqs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.Function, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens)
				}
				return w.Flush()
			}

			// Run list view
			if runs {
				list, err := tr.ListRuns(ctx, contract)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Println("No runs found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUN ID\tCONTRACT\tSTARTED\tLAST ACTIVITY\tREQUESTS\tTOTAL TOKENS")
				for _, r := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
						r.ID, r.Contract, r.StartedAt.Format("2006-01-02T15:04:05"), r.LastActivity.Format("2006-01-02T15:04:05"), r.RequestCount, r.TotalTokens)
				}
				return w.Flush()
			}

			summaries, err := tr.Summary(ctx, contract)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CONTRACT\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					s.Contract, s.Model, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&contract, "contract", "", "filter by contract")
	cmd.Flags().BoolVar(&runs, "runs", false, "list generation runs")
	cmd.Flags().StringVar(&runID, "run-id", "", "show detail for a specific run")
	return cmd
}
