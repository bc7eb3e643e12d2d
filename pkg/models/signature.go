package models

import (
	"encoding/json"
	"fmt"
)

// Mutability is the state mutability class of a contract function.
type Mutability string

const (
	MutabilityPure       Mutability = "pure"
	MutabilityView       Mutability = "view"
	MutabilityNonPayable Mutability = "nonpayable"
	MutabilityPayable    Mutability = "payable"
)

// ParseMutability maps an ABI stateMutability value to a Mutability.
// An empty value defaults to nonpayable, as solc does for old ABIs.
func ParseMutability(s string) (Mutability, error) {
	switch Mutability(s) {
	case MutabilityPure, MutabilityView, MutabilityNonPayable, MutabilityPayable:
		return Mutability(s), nil
	case "":
		return MutabilityNonPayable, nil
	default:
		return "", fmt.Errorf("unknown state mutability %q", s)
	}
}

// ReadOnly reports whether calls with this mutability never change state.
func (m Mutability) ReadOnly() bool {
	return m == MutabilityPure || m == MutabilityView
}

// Payable reports whether calls may carry wei.
func (m Mutability) Payable() bool {
	return m == MutabilityPayable
}

// Parameter is a single input or output of a contract function.
// InternalType and Indexed are descriptive only and do not contribute to identity.
type Parameter struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	InternalType string      `json:"internalType,omitempty"`
	Components   []Parameter `json:"components,omitempty"`
	Indexed      bool        `json:"indexed,omitempty"`
}

// FunctionSignature describes one callable function of a contract ABI.
type FunctionSignature struct {
	Name       string      `json:"name"`
	Mutability Mutability  `json:"stateMutability"`
	Inputs     []Parameter `json:"inputs"`
	Outputs    []Parameter `json:"outputs"`
}

// ArgName returns the name of the i-th input, or arg<i> when the input is unnamed.
func (f FunctionSignature) ArgName(i int) string {
	if i < len(f.Inputs) && f.Inputs[i].Name != "" {
		return f.Inputs[i].Name
	}
	return fmt.Sprintf("arg%d", i)
}

// ArgNames returns ArgName for every input in declaration order.
func (f FunctionSignature) ArgNames() []string {
	names := make([]string, len(f.Inputs))
	for i := range f.Inputs {
		names[i] = f.ArgName(i)
	}
	return names
}

// Digest is the hex-encoded cache key of a canonicalized FunctionSignature.
type Digest string

// Short returns the first 12 characters of the digest, for logs.
func (d Digest) Short() string {
	if len(d) > 12 {
		return string(d[:12])
	}
	return string(d)
}

// Contract carries the per-contract metadata handed to the generation pipeline.
type Contract struct {
	Name    string          `json:"name"`
	Address string          `json:"address,omitempty"`
	ABI     json.RawMessage `json:"abi"`
}
