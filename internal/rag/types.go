package rag

import "time"

// FailureMode classifies a Result.
type FailureMode string

const (
	FailureNone          FailureMode = "none"
	FailureClarify       FailureMode = "clarify"
	FailureRefuse        FailureMode = "refuse"
	FailureLowConfidence FailureMode = "low_confidence"
)

// Fixed answer texts for the non-answer outcomes.
const (
	NotIngestedAnswer = "Data not ingested yet. Please set DATASET_PATH and build the vector store."
	NoMatchAnswer     = "No relevant data found. Try rephrasing with terms that appear in the dataset, such as a year or indicator name."
	ClarifyAnswer     = "I cannot confidently answer from the dataset; could you clarify or provide more specifics?"
)

// Citation points at the dataset rows an answer was drawn from.
type Citation struct {
	Source       string  `json:"source"`
	Snippet      string  `json:"snippet"`
	RowReference *int    `json:"page_or_row"`
	Confidence   float64 `json:"confidence"`
}

// Result is the outcome of one query. Citations is empty unless
// FailureMode is FailureNone.
type Result struct {
	Answer      string      `json:"answer"`
	Citations   []Citation  `json:"citations"`
	Confidence  float64     `json:"confidence"`
	FailureMode FailureMode `json:"failure_mode"`
}

// IsRefusal reports whether the query was declined outright.
func (r Result) IsRefusal() bool {
	return r.FailureMode == FailureRefuse || r.FailureMode == FailureLowConfidence
}

// Status describes the active index generation.
type Status struct {
	Ready      bool       `json:"ready"`
	Attempted  bool       `json:"attempted"`
	Kind       string     `json:"kind,omitempty"`
	Size       int        `json:"size"`
	Generation uint64     `json:"generation"`
	BuiltAt    *time.Time `json:"built_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

func refuseResult() Result {
	return Result{
		Answer:      NotIngestedAnswer,
		Citations:   []Citation{},
		Confidence:  0,
		FailureMode: FailureRefuse,
	}
}
