package rag

import "github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"

const (
	DefaultThreshold = 0.25
	DefaultTopK      = 3
)

// Outcome is the decision taken for one query.
type Outcome string

const (
	OutcomeAnswer        Outcome = "answer"
	OutcomeClarify       Outcome = "clarify"
	OutcomeRefuse        Outcome = "refuse"
	OutcomeLowConfidence Outcome = "low_confidence"
)

// Policy decides between answering, asking for clarification and refusing.
type Policy struct {
	Threshold float64
	TopK      int
}

// Decision is the policy output. Candidates is set only for OutcomeAnswer.
type Decision struct {
	Outcome    Outcome
	Confidence float64
	Candidates []vectorindex.Candidate
}

// Decide applies the policy to the ranked candidates of one search.
// The threshold is inclusive on the answer side.
func (p Policy) Decide(indexReady bool, candidates []vectorindex.Candidate) Decision {
	if !indexReady {
		return Decision{Outcome: OutcomeRefuse}
	}
	if len(candidates) == 0 {
		return Decision{Outcome: OutcomeLowConfidence}
	}

	c := Normalize(candidates[0].RawScore)
	if c < p.Threshold {
		return Decision{Outcome: OutcomeClarify, Confidence: c}
	}

	k := p.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	return Decision{Outcome: OutcomeAnswer, Confidence: c, Candidates: candidates[:k]}
}

// result renders a non-answer decision.
func (d Decision) result() Result {
	res := Result{Citations: []Citation{}, Confidence: d.Confidence}
	switch d.Outcome {
	case OutcomeClarify:
		res.Answer, res.FailureMode = ClarifyAnswer, FailureClarify
	case OutcomeLowConfidence:
		res.Answer, res.FailureMode, res.Confidence = NoMatchAnswer, FailureLowConfidence, 0
	default:
		return refuseResult()
	}
	return res
}
