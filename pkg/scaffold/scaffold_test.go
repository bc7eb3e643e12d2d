package scaffold

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-dream-of-ai/sparkmango/pkg/abi"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

const tokenABI = `[
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

func project(t *testing.T) Project {
	t.Helper()
	a, err := abi.Analyze([]byte(tokenABI))
	require.NoError(t, err)

	var outcomes []models.Outcome
	for _, fn := range a.Functions {
		if fn.Name == "approve" {
			outcomes = append(outcomes, models.Outcome{
				Function: fn.FunctionSignature,
				Err:      errs.New(errs.KindValidation, `missing "transaction_to_sign" tag`, nil),
			})
			continue
		}
		code, err := llm.Fill(fn.FunctionSignature)
		require.NoError(t, err)
		outcomes = append(outcomes, models.Outcome{Function: fn.FunctionSignature, Implementation: code})
	}
	return Project{Name: "Token", Analysis: a, Outcomes: outcomes}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	written, err := Write(dir, project(t))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"go.mod",
		"main.go",
		"abi.json",
		filepath.Join("methods", "totalSupply.go"),
		filepath.Join("methods", "transfer.go"),
		filepath.Join("methods", "registry.go"),
		filepath.Join("docs", "README.md"),
	}, written)
	assert.NoFileExists(t, filepath.Join(dir, "methods", "approve.go"))

	fset := token.NewFileSet()
	for _, rel := range written {
		if filepath.Ext(rel) != ".go" {
			continue
		}
		_, err := parser.ParseFile(fset, filepath.Join(dir, rel), nil, parser.ImportsOnly)
		assert.NoError(t, err, rel)
	}

	gomod := read(t, dir, "go.mod")
	assert.Contains(t, gomod, "module example.com/token-server")
	assert.Contains(t, gomod, "github.com/i-dream-of-ai/sparkmango "+DefaultRuntimeVersion)

	mainGo := read(t, dir, "main.go")
	assert.Contains(t, mainGo, `"example.com/token-server/methods"`)
	assert.Contains(t, mainGo, `runtime.NewServer("Token"`)

	registry := read(t, dir, "methods", "registry.go")
	assert.Contains(t, registry, `"totalSupply": totalSupply,`)
	assert.Contains(t, registry, `"transfer":    transfer,`)
	assert.NotContains(t, registry, "approve")

	method := read(t, dir, "methods", "totalSupply.go")
	assert.Contains(t, method, "package methods")
	assert.Contains(t, method, `"github.com/i-dream-of-ai/sparkmango/pkg/runtime"`)
	assert.Contains(t, method, "func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {")

	readme := read(t, dir, "docs", "README.md")
	assert.Contains(t, readme, "### transfer")
	assert.Contains(t, readme, "- to: address")
	assert.Contains(t, readme, "`0xa9059cbb`")
	assert.Contains(t, readme, "## Not Generated")
	assert.Contains(t, readme, "- approve:")
	assert.Contains(t, readme, "- value: uint256 (indexed: false)")
	assert.Contains(t, readme, "- totalSupply: uint256")
}

func TestWriteDropsUnusedImports(t *testing.T) {
	p := project(t)
	p.Outcomes = []models.Outcome{{
		Function: p.Analysis.Functions[0].FunctionSignature,
		Implementation: `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	result, err := st.Call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return runtime.Result{"result": result}, nil
}`,
	}}
	dir := t.TempDir()
	_, err := Write(dir, p)
	require.NoError(t, err)
	assert.NotContains(t, read(t, dir, "methods", "totalSupply.go"), `"fmt"`)
}

func TestWriteCustomModule(t *testing.T) {
	p := project(t)
	p.Module = "github.com/acme/token"
	p.Listen = ":9000"
	dir := t.TempDir()
	_, err := Write(dir, p)
	require.NoError(t, err)
	assert.Contains(t, read(t, dir, "go.mod"), "module github.com/acme/token")
	assert.Contains(t, read(t, dir, "main.go"), `addr = ":9000"`)
}

func TestWriteRequiresAnalysis(t *testing.T) {
	_, err := Write(t.TempDir(), Project{Name: "Token"})
	assert.Error(t, err)
}

func read(t *testing.T, elem ...string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(elem...))
	require.NoError(t, err)
	return string(b)
}
