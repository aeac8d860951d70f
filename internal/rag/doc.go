// Package rag answers questions against the indexed dataset.
//
// A query flows through search, score normalization, the decision policy
// and, when the policy decides to answer, the synthesizer:
//
//	query -> Index.Search -> Normalize -> Policy.Decide -> Synthesizer -> Result
//
// Pipeline.AnswerQuery is total: index failures, backend errors and panics
// all surface as a refuse Result rather than an error. Build paths
// (Warm, Rebuild) return *Error values so operators can see why.
package rag
