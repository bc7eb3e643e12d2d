package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "sparkmango",
		Short:         "sparkmango - generate contract servers from ABIs with an LLM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "sparkmango.yaml", "path to config file")

	root.AddCommand(
		newGenerateCmd(&configPath),
		newCacheCmd(&configPath),
		newStatsCmd(&configPath),
		newBudgetCmd(&configPath),
		newCostCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
