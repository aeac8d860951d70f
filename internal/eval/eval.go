// Package eval replays a query set against the pipeline, locally or over
// HTTP, and summarizes how it decided.
package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"go.uber.org/zap"
)

// Query is one line of the evaluation set.
type Query struct {
	ID               string `json:"id"`
	Query            string `json:"query"`
	ExpectedBehavior string `json:"expected_behavior,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// Answerer answers one query. A returned error counts as a failed request.
type Answerer interface {
	Answer(ctx context.Context, query string) (rag.Result, error)
}

// PipelineAnswerer adapts an in-process pipeline.
type PipelineAnswerer struct {
	Pipeline interface {
		AnswerQuery(ctx context.Context, query string) rag.Result
	}
}

// Answer never fails.
func (a PipelineAnswerer) Answer(ctx context.Context, query string) (rag.Result, error) {
	return a.Pipeline.AnswerQuery(ctx, query), nil
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	ID               string         `json:"id"`
	Query            string         `json:"query"`
	Answer           string         `json:"answer,omitempty"`
	FailureMode      string         `json:"failure_mode,omitempty"`
	Confidence       float64        `json:"confidence"`
	Citations        []rag.Citation `json:"citations,omitempty"`
	LatencyMs        int64          `json:"latency_ms"`
	Error            string         `json:"error,omitempty"`
	ExpectedBehavior string         `json:"expected_behavior,omitempty"`
	Notes            string         `json:"notes,omitempty"`
}

// Summary aggregates a run. Rates are fractions of Count.
type Summary struct {
	Count             int     `json:"count"`
	ElapsedSeconds    float64 `json:"elapsed_s"`
	Errors            int     `json:"errors"`
	HitRate           float64 `json:"hit_rate"`
	RefusalRate       float64 `json:"refusal_rate"`
	ClarifyRate       float64 `json:"clarify_rate"`
	LowConfidenceRate float64 `json:"low_confidence_rate"`
	LatencyP50Ms      int64   `json:"latency_p50_ms"`
	LatencyP95Ms      int64   `json:"latency_p95_ms"`
}

// Report is the full output of Run.
type Report struct {
	Summary Summary       `json:"summary"`
	Results []QueryResult `json:"results"`
}

// LoadFile reads a JSONL query set from path.
func LoadFile(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query set: %w", err)
	}
	defer f.Close()
	return LoadJSONL(f)
}

// LoadJSONL parses one JSON object per line. Blank and malformed lines are
// skipped, as are objects without a query.
func LoadJSONL(r io.Reader) ([]Query, error) {
	var out []Query
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var q Query
		if err := json.Unmarshal([]byte(line), &q); err != nil {
			continue
		}
		if strings.TrimSpace(q.Query) == "" {
			continue
		}
		out = append(out, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query set: %w", err)
	}
	return out, nil
}

// Run answers every query in order and summarizes the outcomes.
func Run(ctx context.Context, answerer Answerer, queries []Query, logger *zap.Logger) Report {
	start := time.Now()
	results := make([]QueryResult, 0, len(queries))

	for _, q := range queries {
		if ctx.Err() != nil {
			logger.Warn("evaluation interrupted", zap.Int("completed", len(results)))
			break
		}

		qStart := time.Now()
		res, err := answerer.Answer(ctx, q.Query)
		latency := time.Since(qStart).Milliseconds()

		r := QueryResult{
			ID:               q.ID,
			Query:            q.Query,
			LatencyMs:        latency,
			ExpectedBehavior: q.ExpectedBehavior,
			Notes:            q.Notes,
		}
		if err != nil {
			r.Error = err.Error()
			logger.Warn("query failed", zap.String("id", q.ID), zap.Error(err))
		} else {
			r.Answer = res.Answer
			r.FailureMode = string(res.FailureMode)
			r.Confidence = res.Confidence
			r.Citations = res.Citations
			logger.Debug("query evaluated",
				zap.String("id", q.ID),
				zap.String("failure_mode", r.FailureMode),
				zap.Int64("latency_ms", latency))
		}
		results = append(results, r)
	}

	summary := Summarize(results)
	summary.ElapsedSeconds = math.Round(time.Since(start).Seconds()*100) / 100
	return Report{Summary: summary, Results: results}
}

// Summarize computes rates and latency percentiles. A hit is an answered
// query with at least one citation.
func Summarize(results []QueryResult) Summary {
	s := Summary{Count: len(results)}
	if s.Count == 0 {
		return s
	}

	var hits, refusals, clarifies, lowConf int
	latencies := make([]int64, 0, len(results))
	for _, r := range results {
		latencies = append(latencies, r.LatencyMs)
		if r.Error != "" {
			s.Errors++
			continue
		}
		switch rag.FailureMode(r.FailureMode) {
		case rag.FailureRefuse:
			refusals++
		case rag.FailureClarify:
			clarifies++
		case rag.FailureLowConfidence:
			lowConf++
		default:
			if len(r.Citations) > 0 {
				hits++
			}
		}
	}

	n := float64(s.Count)
	s.HitRate = round3(float64(hits) / n)
	s.RefusalRate = round3(float64(refusals) / n)
	s.ClarifyRate = round3(float64(clarifies) / n)
	s.LowConfidenceRate = round3(float64(lowConf) / n)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.LatencyP50Ms = median(latencies)
	s.LatencyP95Ms = p95(latencies)
	return s
}

func median(sorted []int64) int64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// p95 is the maximum for small samples, otherwise the nearest-rank 95th
// percentile.
func p95(sorted []int64) int64 {
	if len(sorted) < 20 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(0.95 * float64(len(sorted))))
	return sorted[rank-1]
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
