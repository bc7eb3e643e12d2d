package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/i-dream-of-ai/sparkmango/pkg/abi"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
	"github.com/i-dream-of-ai/sparkmango/pkg/scaffold"
)

// ProjectRequest names an ABI file and where to write its contract server.
type ProjectRequest struct {
	ABIPath   string
	OutputDir string
	Contract  string
	Address   string
	// Module is the Go module path of the server; derived from Contract when empty.
	Module string
}

// ProjectResult is the outcome of BuildProject.
type ProjectResult struct {
	Batch models.BatchResult
	Files []string
}

// BuildProject analyzes the ABI, generates every function and writes the
// server for the successful ones. Per-function failures are reported in
// Batch and do not fail the call.
func (p *Pipeline) BuildProject(ctx context.Context, req ProjectRequest) (ProjectResult, error) {
	if req.Contract == "" {
		return ProjectResult{}, fmt.Errorf("contract name is required")
	}
	analysis, err := abi.AnalyzeFile(req.ABIPath)
	if err != nil {
		return ProjectResult{}, err
	}
	p.logger.Info("abi analyzed",
		zap.String("contract", req.Contract),
		zap.Int("functions", len(analysis.Functions)),
		zap.Int("events", len(analysis.Events)),
		zap.Int("overloaded", len(analysis.Overloaded)))

	contract := models.Contract{Name: req.Contract, Address: req.Address, ABI: analysis.ABI}
	batch := p.RunAnalysis(ctx, contract, analysis)

	files, err := scaffold.Write(req.OutputDir, scaffold.Project{
		Name:     req.Contract,
		Module:   req.Module,
		Analysis: analysis,
		Outcomes: batch.Outcomes,
	})
	if err != nil {
		return ProjectResult{Batch: batch}, fmt.Errorf("write project: %w", err)
	}
	return ProjectResult{Batch: batch, Files: files}, nil
}
