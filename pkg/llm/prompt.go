package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// SystemPrompt instructs the model to fill templates and nothing else.
const SystemPrompt = `You are a smart contract developer specializing in Go and go-ethereum.
Your task is to generate Go implementations of Solidity functions for a contract server.

You will be given a template and asked to fill in specific parts of it. Your response should ONLY include the filled-in template, with no additional text or explanations.

The template contains placeholders marked with <placeholder> that you need to replace:
1. <function_name> - the function name exactly as it appears in the contract ABI
2. <params> - for each input, in declaration order, the text , args.Get("<input name>") (nothing when the function has no inputs)

IMPORTANT:
- For view and pure functions, the template returns runtime.Result{"result": result}
- For state-changing functions, the template returns runtime.Result{"type": "transaction_to_sign", "transaction": tx}
- The wei argument (args.Value() or runtime.NoValue) is already correct; never replace it with an input, even one named value
- DO NOT modify the template structure, only replace the placeholders
- Keep all map keys and values exactly as shown in the template
- Do not add a package clause or imports

Your response should be a single complete, valid Go function declaration.`

var (
	viewTemplate = template.Must(template.New("view").Parse(
		`func {{.Name}}(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	result, err := st.Call(ctx, "<function_name>"<params>)
	if err != nil {
		return nil, fmt.Errorf("failed to execute {{.Name}}: %w", err)
	}
	return runtime.Result{"result": result}, nil
}`))

	transactionTemplate = template.Must(template.New("transaction").Parse(
		`func {{.Name}}(ctx context.Context, st *runtime.State, args runtime.Args) (runtime.Result, error) {
	gas, err := st.EstimateGas(ctx, {{template "value" .}}, "<function_name>"<params>)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas for {{.Name}}: %w", err)
	}
	tx, err := st.BuildTransaction(ctx, gas, {{template "value" .}}, "<function_name>"<params>)
	if err != nil {
		return nil, fmt.Errorf("failed to build {{.Name}} transaction: %w", err)
	}
	return runtime.Result{"type": "transaction_to_sign", "transaction": tx}, nil
}{{define "value"}}{{if .Mutability.Payable}}args.Value(){{else}}runtime.NoValue{{end}}{{end}}`))

	userTemplate = template.Must(template.New("user").Funcs(template.FuncMap{
		"inputs":  formatInputs,
		"outputs": formatOutputs,
	}).Parse(`Fill in the following template for the {{.Sig.Name}} function:

Template:
{{.Template}}

Function details:
- Name: {{.Sig.Name}}
- State mutability: {{.Sig.Mutability}}
- Inputs: {{inputs .Sig}}
- Outputs: {{outputs .Sig.Outputs}}
{{- if .Contract.Name}}

Contract: {{.Contract.Name}}
{{- end}}

Contract ABI: {{.ABI}}

Replace the placeholders in the template with the appropriate values. Your response should be a complete, valid Go function.`))
)

// Template returns the structural template for sig, with placeholders intact.
func Template(sig models.FunctionSignature) (string, error) {
	t := viewTemplate
	if !sig.Mutability.ReadOnly() {
		t = transactionTemplate
	}
	var b bytes.Buffer
	if err := t.Execute(&b, sig); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return b.String(), nil
}

// Fill replaces the template placeholders the way the model is asked to.
// It is the reference answer for a signature.
func Fill(sig models.FunctionSignature) (string, error) {
	tmpl, err := Template(sig)
	if err != nil {
		return "", err
	}
	var params strings.Builder
	for _, name := range sig.ArgNames() {
		fmt.Fprintf(&params, ", args.Get(%q)", name)
	}
	return strings.NewReplacer(
		"<function_name>", sig.Name,
		"<params>", params.String(),
	).Replace(tmpl), nil
}

// UserPrompt renders the per-signature prompt including the full contract ABI.
func UserPrompt(sig models.FunctionSignature, contract models.Contract) (string, error) {
	tmpl, err := Template(sig)
	if err != nil {
		return "", err
	}
	abiJSON := "[]"
	if len(contract.ABI) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, contract.ABI); err != nil {
			return "", fmt.Errorf("compact contract abi: %w", err)
		}
		abiJSON = compact.String()
	}

	var b bytes.Buffer
	err = userTemplate.Execute(&b, struct {
		Sig      models.FunctionSignature
		Template string
		Contract models.Contract
		ABI      string
	}{
		Sig:      sig,
		Template: tmpl,
		Contract: contract,
		ABI:      abiJSON,
	})
	if err != nil {
		return "", fmt.Errorf("render user prompt: %w", err)
	}
	return b.String(), nil
}

// formatInputs renders the inputs of sig as [name: type, ...] using ArgName.
func formatInputs(sig models.FunctionSignature) string {
	parts := make([]string, len(sig.Inputs))
	for i, p := range sig.Inputs {
		parts[i] = sig.ArgName(i) + ": " + p.Type
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatOutputs(params []models.Parameter) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if p.Name == "" {
			parts[i] = p.Type
			continue
		}
		parts[i] = p.Name + ": " + p.Type
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
