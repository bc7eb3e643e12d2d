package validator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

var totalSupply = models.FunctionSignature{
	Name:       "totalSupply",
	Mutability: models.MutabilityView,
	Outputs:    []models.Parameter{{Type: "uint256"}},
}

var transfer = models.FunctionSignature{
	Name:       "transfer",
	Mutability: models.MutabilityNonPayable,
	Inputs: []models.Parameter{
		{Name: "to", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
	Outputs: []models.Parameter{{Type: "bool"}},
}

const totalSupplyImpl = `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	result, err := st.Call(ctx, "totalSupply")
	if err != nil {
		return nil, fmt.Errorf("failed to execute totalSupply: %w", err)
	}
	return runtime.Result{"result": result}, nil
}`

const transferImpl = `func transfer(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, runtime.NoValue, "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas for transfer: %w", err)
	}
	tx, err := st.BuildTransaction(ctx, gas, runtime.NoValue, "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer: %w", err)
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}`

func TestAcceptsCanonicalTemplates(t *testing.T) {
	assert.Equal(t, Result{Accepted: true}, Validate(totalSupply, totalSupplyImpl))
	assert.Equal(t, Result{Accepted: true}, Validate(transfer, transferImpl))
}

func TestAcceptsHelpersAndOtherStateNames(t *testing.T) {
	impl := `func helper() string { return "x" }

func totalSupply(ctx context.Context, state *runtime.State, _ runtime.Args) (runtime.Result, error) {
	v, err := state.Call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": v}, nil
}`
	assert.True(t, Validate(totalSupply, impl).Accepted)
}

func TestRejections(t *testing.T) {
	cases := []struct {
		name   string
		sig    models.FunctionSignature
		text   string
		rule   Rule
		reason string
	}{
		{
			name: "unparseable",
			sig:  totalSupply,
			text: "func totalSupply( {",
			rule: RuleSyntax,
		},
		{
			name:   "wrong name",
			sig:    totalSupply,
			text:   `func supply(ctx context.Context, st *runtime.State) {}`,
			rule:   RuleEntryPoint,
			reason: "missing entry point func totalSupply",
		},
		{
			name: "method not function",
			sig:  totalSupply,
			text: `func (x T) totalSupply(ctx context.Context, st *runtime.State) {}`,
			rule: RuleEntryPoint,
		},
		{
			name: "state first",
			sig:  totalSupply,
			text: `func totalSupply(st *runtime.State, ctx context.Context) {}`,
			rule: RuleEntryPoint,
		},
		{
			name: "no state",
			sig:  totalSupply,
			text: `func totalSupply(ctx context.Context) {}`,
			rule: RuleEntryPoint,
		},
		{
			name: "no error handler",
			sig:  totalSupply,
			text: `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	result, _ := st.Call(ctx, "totalSupply")
	return runtime.Result{"result": result}, nil
}`,
			rule: RuleErrorHandling,
		},
		{
			name: "missing result key",
			sig:  totalSupply,
			text: `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	v, err := st.Call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return runtime.Result{"value": v}, nil
}`,
			rule:   RuleCallResult,
			reason: `missing "result" field in returned result`,
		},
		{
			name: "view builds transaction",
			sig:  totalSupply,
			text: `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	v, err := st.Call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	tx, _ := st.BuildTransaction(ctx, 0, nil, "totalSupply")
	return runtime.Result{"result": v, "tx": tx}, nil
}`,
			rule: RuleCallResult,
		},
		{
			name: "no call",
			sig:  totalSupply,
			text: `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	var err error
	if err != nil {
		return nil, err
	}
	return runtime.Result{"result": 1}, nil
}`,
			rule: RuleCallResult,
		},
		{
			name: "missing tag",
			sig:  transfer,
			text: `func transfer(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, nil, "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, err
	}
	tx, err := st.BuildTransaction(ctx, gas, nil, "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"type": "tx", "transaction": tx}, nil
}`,
			rule:   RuleTransaction,
			reason: `missing "transaction_to_sign" tag`,
		},
		{
			name: "no gas estimate",
			sig:  transfer,
			text: `func transfer(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	tx, err := st.BuildTransaction(ctx, 21000, nil, "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}`,
			rule: RuleTransaction,
		},
		{
			name: "nonpayable sends value",
			sig:  transfer,
			text: `func transfer(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, args.Value(), "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, err
	}
	tx, err := st.BuildTransaction(ctx, gas, args.Value(), "transfer", args.Get("to"), args.Get("amount"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}`,
			rule:   RuleTransaction,
			reason: "nonpayable function must not send value",
		},
		{
			name: "unused parameter",
			sig:  transfer,
			text: `func transfer(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, nil, "transfer", args.Get("to"))
	if err != nil {
		return nil, err
	}
	tx, err := st.BuildTransaction(ctx, gas, nil, "transfer", args.Get("to"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}`,
			rule:   RuleParameters,
			reason: `parameter "amount" is not used`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(tc.sig, tc.text)
			assert.False(t, res.Accepted)
			assert.Equal(t, tc.rule, res.Rule)
			if tc.reason != "" {
				assert.Equal(t, tc.reason, res.Reason)
			}
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestUnnamedInputsUseArgNames(t *testing.T) {
	sig := models.FunctionSignature{
		Name:       "balanceOf",
		Mutability: models.MutabilityView,
		Inputs:     []models.Parameter{{Type: "address"}},
	}
	impl := `func balanceOf(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	result, err := st.Call(ctx, "balanceOf", args.Get("arg0"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"result": result}, nil
}`
	assert.True(t, Validate(sig, impl).Accepted)
}

func TestFirstFailingRuleWins(t *testing.T) {
	// Missing both the error handler and the result key: the error handler is checked first.
	impl := `func totalSupply(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	v, _ := st.Call(ctx, "totalSupply")
	return runtime.Result{"value": v}, nil
}`
	assert.Equal(t, RuleErrorHandling, Validate(totalSupply, impl).Rule)
}

func TestValueInputIsAParameter(t *testing.T) {
	erc20Transfer := models.FunctionSignature{
		Name:       "transfer",
		Mutability: models.MutabilityNonPayable,
		Inputs: []models.Parameter{
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
		},
	}
	impl := `func transfer(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, runtime.NoValue, "transfer", args.Get("to"), args.Get("value"))
	if err != nil {
		return nil, err
	}
	tx, err := st.BuildTransaction(ctx, gas, runtime.NoValue, "transfer", args.Get("to"), args.Get("value"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}`
	assert.True(t, Validate(erc20Transfer, impl).Accepted)

	bid := models.FunctionSignature{
		Name:       "bid",
		Mutability: models.MutabilityPayable,
		Inputs:     []models.Parameter{{Name: "value", Type: "uint256"}},
	}
	impl = `func bid(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, args.Value(), "bid", args.Get("value"))
	if err != nil {
		return nil, err
	}
	tx, err := st.BuildTransaction(ctx, gas, args.Value(), "bid", args.Get("value"))
	if err != nil {
		return nil, err
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}`
	assert.True(t, Validate(bid, impl).Accepted)
}

func TestReservedFunctionNames(t *testing.T) {
	const impl = `func %s(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	result, err := st.Call(ctx, %q)
	if err != nil {
		return nil, err
	}
	return runtime.Result{"result": result}, nil
}`
	for _, name := range []string{"init", "_", "Registry", "fmt", "context", "runtime", "error", "len", "type", "range"} {
		t.Run(name, func(t *testing.T) {
			sig := models.FunctionSignature{Name: name, Mutability: models.MutabilityView}
			res := Validate(sig, fmt.Sprintf(impl, name, name))
			assert.False(t, res.Accepted)
			assert.Equal(t, RuleEntryPoint, res.Rule)
			assert.Contains(t, res.Reason, "cannot be declared")
		})
	}

	sig := models.FunctionSignature{Name: "owner", Mutability: models.MutabilityView}
	assert.True(t, Validate(sig, fmt.Sprintf(impl, "owner", "owner")).Accepted)
}
