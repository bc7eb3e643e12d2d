package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-dream-of-ai/sparkmango/pkg/abi"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

var balanceOf = models.FunctionSignature{
	Name:       "balanceOf",
	Mutability: models.MutabilityView,
	Inputs:     []models.Parameter{{Name: "owner", Type: "address"}},
	Outputs:    []models.Parameter{{Type: "uint256"}},
}

type runRecorder struct {
	mu   sync.Mutex
	runs map[string]string
}

func (r *runRecorder) StartRun(_ context.Context, runID, contract string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = contract
	return nil
}

func TestRunIsolatesFailures(t *testing.T) {
	gen := &fakeGen{fail: map[string]error{"transfer": errs.New(errs.KindService, "boom", nil)}}
	rec := &runRecorder{runs: make(map[string]string)}
	p := New(newMemStore(), gen, WithConcurrency(2), WithRunRecorder(rec))

	sigs := []models.FunctionSignature{totalSupply, transfer, balanceOf}
	res := p.Run(context.Background(), token, sigs)

	require.Len(t, res.Outcomes, 3)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "Token", res.Contract)
	assert.Equal(t, "Token", rec.runs[res.RunID])

	for i, o := range res.Outcomes {
		assert.Equal(t, sigs[i].Name, o.Function.Name, "outcomes keep input order")
	}
	assert.True(t, res.Outcomes[0].OK())
	assert.False(t, res.Outcomes[1].OK())
	assert.True(t, errs.IsKind(res.Outcomes[1].Err, errs.KindService))
	assert.True(t, res.Outcomes[2].OK())
	assert.Len(t, res.Succeeded(), 2)
	assert.Len(t, res.Failed(), 1)
}

type runIDGen struct {
	fakeGen
	mu  sync.Mutex
	ids map[string]bool
}

func (g *runIDGen) Generate(ctx context.Context, sig models.FunctionSignature, c models.Contract) (llm.Generation, error) {
	g.mu.Lock()
	g.ids[llm.RunIDFromContext(ctx)] = true
	g.mu.Unlock()
	return g.fakeGen.Generate(ctx, sig, c)
}

func TestRunTagsContextWithRunID(t *testing.T) {
	gen := &runIDGen{ids: make(map[string]bool)}
	p := New(newMemStore(), gen)

	res := p.Run(context.Background(), token, []models.FunctionSignature{totalSupply, balanceOf})
	assert.Equal(t, map[string]bool{res.RunID: true}, gen.ids)
}

func TestRunEmpty(t *testing.T) {
	p := New(newMemStore(), &fakeGen{})
	res := p.Run(context.Background(), token, nil)
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, res.Failed())
}

const overloadedABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

func TestRunAnalysisReportsOverloads(t *testing.T) {
	a, err := abi.Analyze([]byte(overloadedABI))
	require.NoError(t, err)

	p := New(newMemStore(), &fakeGen{})
	res := p.RunAnalysis(context.Background(), models.Contract{Name: "Token"}, a)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "transfer", res.Outcomes[0].Function.Name)
	assert.True(t, res.Outcomes[0].OK())
	assert.Equal(t, "totalSupply", res.Outcomes[1].Function.Name)
	assert.True(t, res.Outcomes[1].OK())

	over := res.Outcomes[2]
	assert.False(t, over.OK())
	assert.Len(t, over.Function.Inputs, 3)
	assert.Contains(t, over.Reason(), "overloaded function not supported")
}

func TestRunSurvivesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGen{fail: map[string]error{
		"totalSupply": errs.New(errs.KindService, "cancelled", context.Canceled),
		"balanceOf":   errs.New(errs.KindService, "cancelled", context.Canceled),
	}}
	p := New(newMemStore(), gen)

	res := p.Run(ctx, token, []models.FunctionSignature{totalSupply, balanceOf})
	require.Len(t, res.Failed(), 2)
	for _, o := range res.Outcomes {
		assert.True(t, errors.Is(o.Err, context.Canceled))
	}
}

func TestBuildProject(t *testing.T) {
	dir := t.TempDir()
	abiPath := filepath.Join(dir, "Token.json")
	require.NoError(t, os.WriteFile(abiPath, []byte(overloadedABI), 0o600))
	out := filepath.Join(dir, "server")

	gen := &fakeGen{code: map[string]string{"totalSupply": missingResult}}
	p := New(newMemStore(), gen)
	res, err := p.BuildProject(context.Background(), ProjectRequest{
		ABIPath:   abiPath,
		OutputDir: out,
		Contract:  "Token",
	})
	require.NoError(t, err)

	require.Len(t, res.Batch.Outcomes, 3)
	assert.Len(t, res.Batch.Succeeded(), 1)
	assert.Contains(t, res.Files, filepath.Join("methods", "transfer.go"))
	assert.NotContains(t, res.Files, filepath.Join("methods", "totalSupply.go"))
	assert.FileExists(t, filepath.Join(out, "methods", "registry.go"))
}

func TestBuildProjectErrors(t *testing.T) {
	p := New(newMemStore(), &fakeGen{})
	_, err := p.BuildProject(context.Background(), ProjectRequest{ABIPath: "x.json"})
	assert.ErrorContains(t, err, "contract name is required")

	_, err = p.BuildProject(context.Background(), ProjectRequest{
		ABIPath:  filepath.Join(t.TempDir(), "missing.json"),
		Contract: "Token",
	})
	assert.Error(t, err)
}
