package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics records prediction outcomes.
type Metrics interface {
	RecordPrediction(failureMode string, latency time.Duration)
	RecordRequest(path, method string, status int)
}

// latencyBuckets are the upper bounds, in milliseconds, of the latency histogram.
var latencyBuckets = []int64{50, 100, 200, 400, 800, 1600, 3200}

// Counters is an in-process Metrics implementation safe for concurrent use.
type Counters struct {
	mu        sync.Mutex
	decisions map[string]int64
	requests  map[string]int64
	buckets   []int64
	count     int64
	sumMs     int64
}

// NewCounters creates empty counters.
func NewCounters() *Counters {
	return &Counters{
		decisions: make(map[string]int64),
		requests:  make(map[string]int64),
		buckets:   make([]int64, len(latencyBuckets)+1),
	}
}

// RecordPrediction counts one prediction and its latency.
func (c *Counters) RecordPrediction(failureMode string, latency time.Duration) {
	if failureMode == "" {
		failureMode = "none"
	}
	ms := latency.Milliseconds()
	i := sort.Search(len(latencyBuckets), func(i int) bool { return ms <= latencyBuckets[i] })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions[failureMode]++
	c.buckets[i]++
	c.count++
	c.sumMs += ms
}

// RecordRequest counts one HTTP response.
func (c *Counters) RecordRequest(path, method string, status int) {
	key := method + " " + path + " " + statusClass(status)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[key]++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Decisions     map[string]int64 `json:"decisions"`
	Requests      map[string]int64 `json:"requests"`
	Predictions   int64            `json:"predictions"`
	LatencyMsSum  int64            `json:"latency_ms_sum"`
	LatencyBucket map[string]int64 `json:"latency_ms_buckets"`
	Refusals      int64            `json:"refusals"`
	LowConfidence int64            `json:"low_confidence"`
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Decisions:     make(map[string]int64, len(c.decisions)),
		Requests:      make(map[string]int64, len(c.requests)),
		Predictions:   c.count,
		LatencyMsSum:  c.sumMs,
		LatencyBucket: make(map[string]int64, len(c.buckets)),
		Refusals:      c.decisions["refuse"],
		LowConfidence: c.decisions["low_confidence"],
	}
	for k, v := range c.decisions {
		s.Decisions[k] = v
	}
	for k, v := range c.requests {
		s.Requests[k] = v
	}

	// cumulative, like a prometheus histogram
	var running int64
	for i, n := range c.buckets {
		running += n
		label := "+Inf"
		if i < len(latencyBuckets) {
			label = strconv.FormatInt(latencyBuckets[i], 10)
		}
		s.LatencyBucket[label] = running
	}
	return s
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
