package generator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i-dream-of-ai/sparkmango/pkg/abi"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
	"github.com/i-dream-of-ai/sparkmango/pkg/signature"
)

// Run generates every signature of a contract with bounded concurrency.
// One signature's failure never stops the others, and outcomes are in input order.
func (p *Pipeline) Run(ctx context.Context, contract models.Contract, sigs []models.FunctionSignature) models.BatchResult {
	runID := uuid.NewString()
	ctx = llm.WithRunID(ctx, runID)
	log := p.logger.With(zap.String("run_id", runID), zap.String("contract", contract.Name))

	if p.runs != nil {
		if err := p.runs.StartRun(ctx, runID, contract.Name); err != nil {
			log.Warn("failed to register run", zap.Error(err))
		}
	}
	log.Info("run started", zap.Int("functions", len(sigs)), zap.Int("concurrency", p.concurrency))

	outcomes := make([]models.Outcome, len(sigs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, sig := range sigs {
		g.Go(func() error {
			res, err := p.Generate(ctx, sig, contract)
			outcomes[i] = models.Outcome{
				Function:       sig,
				Digest:         res.Digest,
				Implementation: res.Text,
				FromCache:      res.FromCache,
				Err:            err,
				CacheErr:       res.CacheErr,
			}
			return nil
		})
	}
	_ = g.Wait()

	result := models.BatchResult{RunID: runID, Contract: contract.Name, Outcomes: outcomes}
	log.Info("run finished",
		zap.Int("succeeded", len(result.Succeeded())),
		zap.Int("failed", len(result.Failed())))
	return result
}

// RunAnalysis runs the generatable functions of an analyzed ABI. Later
// declarations of an overloaded name are reported as failed outcomes after
// the generated ones.
func (p *Pipeline) RunAnalysis(ctx context.Context, contract models.Contract, a *abi.Analysis) models.BatchResult {
	if len(contract.ABI) == 0 {
		contract.ABI = a.ABI
	}
	result := p.Run(ctx, contract, a.Signatures())
	for _, fn := range a.Overloaded {
		result.Outcomes = append(result.Outcomes, models.Outcome{
			Function: fn.FunctionSignature,
			Digest:   signature.Canonicalize(fn.FunctionSignature),
			Err: errs.New(errs.KindValidation, "overloaded function not supported", nil).
				WithContext("function", fn.Name).
				WithContext("sig", fn.Sig),
		})
	}
	return result
}
