package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i-dream-of-ai/sparkmango/pkg/budget"
	"github.com/i-dream-of-ai/sparkmango/pkg/tracker"
)

func newBudgetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect token budgets",
	}

	var contract string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			ctx := context.Background()
			enforcer := budget.New(cfg.Budget.Policies, tr)

			contracts := []string{contract}
			if contract == "" {
				contracts, err = tracker.Contracts(ctx, tr)
				if err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CONTRACT\tPOLICY\tMODEL\tPERIOD\tMAX TOKENS\tUSED\tREMAINING")
			rows := 0
			for _, c := range contracts {
				statuses, err := enforcer.Status(ctx, c)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
						c, s.Policy.Contract, defaultStr(s.Policy.Model, "*"), s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
					rows++
				}
			}
			if rows == 0 {
				fmt.Println("No budget policies apply.")
				return nil
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&contract, "contract", "", "show a single contract")

	cmd.AddCommand(statusCmd)
	return cmd
}
