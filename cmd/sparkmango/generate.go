package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i-dream-of-ai/sparkmango/pkg/generator"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		address    string
		cacheDir   string
		metricsOut string
		module     string
	)

	cmd := &cobra.Command{
		Use:   "generate ABI_FILE OUTPUT_DIR CONTRACT_NAME",
		Short: "Generate a contract server project from an ABI",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			abiPath, outputDir, contract := args[0], args[1], args[2]

			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg, cacheDirFor(outputDir, cacheDir, cfg.Cache), logger)
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.BuildProject(ctx, generator.ProjectRequest{
				ABIPath:   abiPath,
				OutputDir: outputDir,
				Contract:  contract,
				Address:   address,
				Module:    module,
			})
			if err != nil {
				return err
			}

			if err := renderOutcomes(res.Batch); err != nil {
				return err
			}
			usage := p.meter.Snapshot()
			pterm.Info.Printfln("run %s: %d requests, %d tokens (%.1f avg)",
				res.Batch.RunID, usage.TotalRequests, usage.TotalUnits, usage.AverageUnits)

			if metricsOut != "" {
				if err := p.Metrics().WriteTextfile(metricsOut); err != nil {
					logger.Warn("metrics textfile not written", zap.String("path", metricsOut), zap.Error(err))
				}
			}

			failed := res.Batch.Failed()
			if len(failed) > 0 {
				pterm.Warning.Printfln("%d of %d functions failed; the server was written without them",
					len(failed), len(res.Batch.Outcomes))
				return fmt.Errorf("%d functions failed", len(failed))
			}
			pterm.Success.Printfln("wrote %d files to %s", len(res.Files), outputDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "deployed contract address baked into the server")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "file cache directory (default: OUTPUT_DIR/cache)")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "write run metrics to this Prometheus textfile")
	cmd.Flags().StringVar(&module, "module", "", "Go module path of the generated server")
	return cmd
}

func renderOutcomes(batch models.BatchResult) error {
	if len(batch.Outcomes) == 0 {
		pterm.Info.Println("No functions to generate.")
		return nil
	}
	data := pterm.TableData{{"FUNCTION", "DIGEST", "CACHED", "STATUS"}}
	for _, o := range batch.Outcomes {
		status := "ok"
		if !o.OK() {
			status = o.Reason()
		}
		data = append(data, []string{
			o.Function.Name,
			o.Digest.Short(),
			strconv.FormatBool(o.FromCache),
			status,
		})
	}
	return pterm.DefaultTable.WithHasHeader(true).WithData(data).Render()
}
