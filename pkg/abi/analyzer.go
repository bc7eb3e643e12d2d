// Package abi turns a contract ABI document into typed function signatures.
package abi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Function is a function signature plus its derived Solidity identity.
type Function struct {
	models.FunctionSignature
	// Sig is the canonical Solidity signature, e.g. transfer(address,uint256).
	Sig string `json:"sig"`
	// Selector is the 0x-prefixed 4-byte method id.
	Selector string `json:"selector"`
}

// Event is an event declared in the ABI.
type Event struct {
	Name      string             `json:"name"`
	Inputs    []models.Parameter `json:"inputs"`
	Anonymous bool               `json:"anonymous,omitempty"`
}

// StateVariable is a public getter without inputs, the usual shape of a state variable.
type StateVariable struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Analysis is the structured view of an ABI document.
type Analysis struct {
	ABI            json.RawMessage           `json:"abi"`
	Functions      []Function                `json:"functions"`
	Events         []Event                   `json:"events"`
	StateVariables []StateVariable           `json:"state_variables"`
	Constructor    *models.FunctionSignature `json:"constructor,omitempty"`
	// Overloaded holds later declarations of an already seen function name.
	Overloaded []Function `json:"overloaded,omitempty"`
}

// Signatures returns the function signatures in declaration order.
func (a *Analysis) Signatures() []models.FunctionSignature {
	out := make([]models.FunctionSignature, len(a.Functions))
	for i, f := range a.Functions {
		out[i] = f.FunctionSignature
	}
	return out
}

type entry struct {
	Type            string             `json:"type"`
	Name            string             `json:"name"`
	Inputs          []models.Parameter `json:"inputs"`
	Outputs         []models.Parameter `json:"outputs"`
	StateMutability string             `json:"stateMutability"`
	Constant        bool               `json:"constant"`
	Payable         bool               `json:"payable"`
	Anonymous       bool               `json:"anonymous"`
}

// AnalyzeFile reads and analyzes an ABI file.
func AnalyzeFile(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi: %w", err)
	}
	return Analyze(data)
}

// Analyze parses a raw ABI array or a build artifact carrying an "abi" field.
func Analyze(data []byte) (*Analysis, error) {
	raw, err := extractABI(data)
	if err != nil {
		return nil, err
	}
	if _, err := gethabi.JSON(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode abi entries: %w", err)
	}

	a := &Analysis{ABI: raw}
	seen := make(map[string]bool)
	for _, e := range entries {
		switch e.Type {
		case "function":
			fn, err := newFunction(e)
			if err != nil {
				return nil, err
			}
			if seen[fn.Name] {
				a.Overloaded = append(a.Overloaded, fn)
				continue
			}
			seen[fn.Name] = true
			a.Functions = append(a.Functions, fn)
			if fn.Mutability == models.MutabilityView && len(fn.Inputs) == 0 {
				typ := "unknown"
				if len(fn.Outputs) > 0 {
					typ = fn.Outputs[0].Type
				}
				a.StateVariables = append(a.StateVariables, StateVariable{Name: fn.Name, Type: typ})
			}
		case "event":
			a.Events = append(a.Events, Event{Name: e.Name, Inputs: e.Inputs, Anonymous: e.Anonymous})
		case "constructor":
			m, err := mutability(e)
			if err != nil {
				return nil, fmt.Errorf("constructor: %w", err)
			}
			a.Constructor = &models.FunctionSignature{Name: "constructor", Mutability: m, Inputs: e.Inputs}
		}
	}
	return a, nil
}

func extractABI(data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty abi document")
	}
	if trimmed[0] == '[' {
		return json.RawMessage(trimmed), nil
	}
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(trimmed, &artifact); err != nil {
		return nil, fmt.Errorf("decode abi artifact: %w", err)
	}
	if len(artifact.ABI) == 0 {
		return nil, fmt.Errorf("artifact has no abi field")
	}
	return artifact.ABI, nil
}

func newFunction(e entry) (Function, error) {
	m, err := mutability(e)
	if err != nil {
		return Function{}, fmt.Errorf("function %s: %w", e.Name, err)
	}
	types := make([]string, len(e.Inputs))
	for i, p := range e.Inputs {
		typ, err := canonicalType(p)
		if err != nil {
			return Function{}, fmt.Errorf("function %s input %d: %w", e.Name, i, err)
		}
		types[i] = typ
	}
	for i, p := range e.Outputs {
		if _, err := canonicalType(p); err != nil {
			return Function{}, fmt.Errorf("function %s output %d: %w", e.Name, i, err)
		}
	}
	sig := e.Name + "(" + strings.Join(types, ",") + ")"
	return Function{
		FunctionSignature: models.FunctionSignature{
			Name:       e.Name,
			Mutability: m,
			Inputs:     e.Inputs,
			Outputs:    e.Outputs,
		},
		Sig:      sig,
		Selector: hexutil.Encode(crypto.Keccak256([]byte(sig))[:4]),
	}, nil
}

func mutability(e entry) (models.Mutability, error) {
	if e.StateMutability != "" {
		return models.ParseMutability(e.StateMutability)
	}
	switch {
	case e.Constant:
		return models.MutabilityView, nil
	case e.Payable:
		return models.MutabilityPayable, nil
	default:
		return models.MutabilityNonPayable, nil
	}
}

// canonicalType validates p with go-ethereum and returns its canonical type string,
// with tuples expanded to (t1,t2,...).
func canonicalType(p models.Parameter) (string, error) {
	typ, err := gethabi.NewType(p.Type, p.InternalType, marshaling(p.Components))
	if err != nil {
		return "", err
	}
	return typ.String(), nil
}

func marshaling(params []models.Parameter) []gethabi.ArgumentMarshaling {
	if len(params) == 0 {
		return nil
	}
	out := make([]gethabi.ArgumentMarshaling, len(params))
	for i, p := range params {
		out[i] = gethabi.ArgumentMarshaling{
			Name:         p.Name,
			Type:         p.Type,
			InternalType: p.InternalType,
			Components:   marshaling(p.Components),
			Indexed:      p.Indexed,
		}
	}
	return out
}
