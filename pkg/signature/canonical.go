// Package signature derives stable cache identities for contract function signatures.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Canonical returns the canonical serialization of sig.
//
// The form is a JSON object with sorted keys holding the name, the mutability and
// the inputs and outputs as ordered [name, type] pairs. A parameter with components
// serializes as [name, type, components] so distinct tuple shapes never collide.
func Canonical(sig models.FunctionSignature) []byte {
	doc := map[string]any{
		"name":             sig.Name,
		"inputs":           pairs(sig.Inputs),
		"outputs":          pairs(sig.Outputs),
		"state_mutability": string(sig.Mutability),
	}
	// Marshal of maps, slices and strings cannot fail.
	data, _ := json.Marshal(doc)
	return data
}

// Canonicalize returns the digest of sig's canonical serialization.
func Canonicalize(sig models.FunctionSignature) models.Digest {
	sum := sha256.Sum256(Canonical(sig))
	return models.Digest(hex.EncodeToString(sum[:]))
}

func pairs(params []models.Parameter) []any {
	out := make([]any, 0, len(params))
	for _, p := range params {
		if len(p.Components) > 0 {
			out = append(out, []any{p.Name, p.Type, pairs(p.Components)})
			continue
		}
		out = append(out, []any{p.Name, p.Type})
	}
	return out
}
