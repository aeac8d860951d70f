package rag

import (
	"errors"
	"math"
	"testing"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(start, end int, content string, raw float64) vectorindex.Candidate {
	return vectorindex.Candidate{
		Chunk: dataset.Chunk{
			ID:       "chunk_x",
			Content:  content,
			StartRow: start,
			EndRow:   end,
		},
		RawScore: raw,
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{name: "zero", raw: 0, want: 0},
		{name: "relevance", raw: 0.42, want: 0.42},
		{name: "one", raw: 1, want: 1},
		{name: "small negative", raw: -0.0001, want: ConfidenceFloor},
		{name: "large negative", raw: -1e9, want: ConfidenceFloor},
		{name: "negative infinity", raw: math.Inf(-1), want: ConfidenceFloor},
		{name: "nan", raw: math.NaN(), want: ConfidenceFloor},
		{name: "distance 3", raw: 3, want: 0.25},
		{name: "distance 9", raw: 9, want: 0.1},
		{name: "positive infinity", raw: math.Inf(1), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Normalize(tt.raw), 1e-12)
		})
	}
}

func TestNormalize_Bounds(t *testing.T) {
	for _, raw := range []float64{-100, -1, -0.5, 0, 0.1, 0.5, 0.99, 1, 1.01, 2, 10, 1e6, 1e300} {
		c := Normalize(raw)
		assert.GreaterOrEqual(t, c, 0.0, "raw=%v", raw)
		assert.LessOrEqual(t, c, 1.0, "raw=%v", raw)
	}

	// distances decrease monotonically
	prev := Normalize(1.0001)
	for _, raw := range []float64{1.5, 2, 5, 50, 500} {
		c := Normalize(raw)
		assert.Less(t, c, prev)
		prev = c
	}
}

func TestPolicy_Decide(t *testing.T) {
	p := Policy{Threshold: 0.25, TopK: 2}

	t.Run("index not ready", func(t *testing.T) {
		d := p.Decide(false, []vectorindex.Candidate{cand(0, 1, "a=1", 0.9)})
		assert.Equal(t, OutcomeRefuse, d.Outcome)
		assert.Zero(t, d.Confidence)
		assert.Empty(t, d.Candidates)
	})

	t.Run("no candidates", func(t *testing.T) {
		d := p.Decide(true, nil)
		assert.Equal(t, OutcomeLowConfidence, d.Outcome)
		assert.Zero(t, d.Confidence)
	})

	t.Run("below threshold", func(t *testing.T) {
		d := p.Decide(true, []vectorindex.Candidate{cand(0, 1, "a=1", 0.1)})
		assert.Equal(t, OutcomeClarify, d.Outcome)
		assert.InDelta(t, 0.1, d.Confidence, 1e-12)
		assert.Empty(t, d.Candidates)
	})

	t.Run("answer keeps top k", func(t *testing.T) {
		d := p.Decide(true, []vectorindex.Candidate{
			cand(0, 1, "a=1", 0.9),
			cand(2, 3, "a=2", 0.5),
			cand(4, 5, "a=3", 0.4),
		})
		assert.Equal(t, OutcomeAnswer, d.Outcome)
		assert.InDelta(t, 0.9, d.Confidence, 1e-12)
		require.Len(t, d.Candidates, 2)
		assert.Equal(t, 2, d.Candidates[1].Chunk.StartRow)
	})

	t.Run("negative top score clarifies at floor", func(t *testing.T) {
		d := p.Decide(true, []vectorindex.Candidate{cand(0, 1, "a=1", -0.3)})
		assert.Equal(t, OutcomeClarify, d.Outcome)
		assert.InDelta(t, ConfidenceFloor, d.Confidence, 1e-12)
	})
}

func TestPolicy_ThresholdIsInclusive(t *testing.T) {
	p := Policy{Threshold: 0.25, TopK: 3}

	below := p.Decide(true, []vectorindex.Candidate{cand(0, 0, "a=1", math.Nextafter(0.25, 0))})
	at := p.Decide(true, []vectorindex.Candidate{cand(0, 0, "a=1", 0.25)})
	above := p.Decide(true, []vectorindex.Candidate{cand(0, 0, "a=1", 0.26)})

	assert.Equal(t, OutcomeClarify, below.Outcome)
	assert.Equal(t, OutcomeAnswer, at.Outcome)
	assert.Equal(t, OutcomeAnswer, above.Outcome)
}

func TestDecision_Result(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		mode     FailureMode
		answer   string
		conf     float64
	}{
		{name: "refuse", decision: Decision{Outcome: OutcomeRefuse}, mode: FailureRefuse, answer: NotIngestedAnswer},
		{name: "low confidence", decision: Decision{Outcome: OutcomeLowConfidence}, mode: FailureLowConfidence, answer: NoMatchAnswer},
		{name: "clarify", decision: Decision{Outcome: OutcomeClarify, Confidence: 0.1}, mode: FailureClarify, answer: ClarifyAnswer, conf: 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.decision.result()
			assert.Equal(t, tt.mode, res.FailureMode)
			assert.Equal(t, tt.answer, res.Answer)
			assert.InDelta(t, tt.conf, res.Confidence, 1e-12)
			assert.NotNil(t, res.Citations)
			assert.Empty(t, res.Citations)
		})
	}
}

func TestError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewError(KindBackendTransient, "search failed", cause)

	assert.ErrorIs(t, err, ErrBackendTransient)
	assert.NotErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindBackendTransient, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Equal(t, "backend_transient: search failed (dial tcp: refused)", err.Error())
}

func TestClassifyBuildError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "dataset", err: dataset.ErrNoColumns, want: ErrInvalidInput},
		{name: "unavailable", err: vectorindex.ErrUnavailable, want: ErrIndexUnavailable},
		{name: "empty", err: vectorindex.ErrEmpty, want: ErrIndexUnavailable},
		{name: "other", err: errors.New("timeout"), want: ErrBackendTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyBuildError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.Nil(t, classifyBuildError(nil))
}
