package models

// GenerationAttempt is the ephemeral record of one orchestration miss path.
// It is logged, never persisted.
type GenerationAttempt struct {
	Signature FunctionSignature
	Prompt    string
	Response  string
	Accepted  bool
	Reason    string
	Attempts  int
}

// Outcome is the per-signature result of a batch run.
type Outcome struct {
	Function       FunctionSignature `json:"function"`
	Digest         Digest            `json:"digest"`
	Implementation string            `json:"-"`
	FromCache      bool              `json:"from_cache"`
	Err            error             `json:"-"`
	CacheErr       error             `json:"-"`
}

// OK reports whether the signature produced a usable implementation.
func (o Outcome) OK() bool { return o.Err == nil }

// Reason returns the failure reason, or "" on success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// BatchResult aggregates the outcomes of one contract's generation run.
// Outcomes are in the same order as the input signatures.
type BatchResult struct {
	RunID    string    `json:"run_id"`
	Contract string    `json:"contract"`
	Outcomes []Outcome `json:"outcomes"`
}

// Succeeded returns the outcomes that produced an implementation.
func (b BatchResult) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the outcomes that did not produce an implementation.
func (b BatchResult) Failed() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
