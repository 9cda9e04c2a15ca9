// Package shape keeps responses inside the caller's context budget. The
// estimator prices a payload in approximate tokens, and the shaper picks the
// cheapest rendition that still answers the request: full payload, projected
// preview, or sequential chunks.
package shape

import (
	"math"
	"sync"

	"github.com/goliatone/go-gateway/core"
)

const (
	// charsPerToken is the serialization-agnostic heuristic: roughly four
	// characters of JSON per token.
	charsPerToken = 4

	DefaultEstimateMargin = 0.20

	estimateMethodChars = "chars_div4"
)

// CharEstimator prices payloads by character count with a safety margin. A
// real tokenizer can replace it behind the same contract.
type CharEstimator struct {
	Margin float64
}

func NewCharEstimator(margin float64) CharEstimator {
	if margin <= 0 || margin > 1 {
		margin = DefaultEstimateMargin
	}
	return CharEstimator{Margin: margin}
}

func (e CharEstimator) Estimate(payload []byte) core.CostEstimate {
	margin := e.Margin
	if margin <= 0 {
		margin = DefaultEstimateMargin
	}
	base := float64(len(payload)) / charsPerToken
	return core.CostEstimate{
		ApproxTokens: int(math.Ceil(base * (1 + margin))),
		Method:       estimateMethodChars,
		Margin:       margin,
	}
}

// DriftStats summarizes how the heuristic tracked observed payload sizes.
type DriftStats struct {
	Samples   int
	MeanRatio float64
	MaxRatio  float64
}

// DriftRecorder accumulates estimate-to-size ratios so a background job can
// log when the heuristic drifts. Observation only; it never changes
// estimates.
type DriftRecorder struct {
	mu       sync.Mutex
	samples  int
	sumRatio float64
	maxRatio float64
}

func NewDriftRecorder() *DriftRecorder {
	return &DriftRecorder{}
}

func (r *DriftRecorder) Observe(estimate core.CostEstimate, payloadBytes int) {
	if r == nil || payloadBytes <= 0 {
		return
	}
	expected := float64(payloadBytes) / charsPerToken
	if expected <= 0 {
		return
	}
	ratio := float64(estimate.ApproxTokens) / expected
	r.mu.Lock()
	r.samples++
	r.sumRatio += ratio
	if ratio > r.maxRatio {
		r.maxRatio = ratio
	}
	r.mu.Unlock()
}

func (r *DriftRecorder) Snapshot() DriftStats {
	if r == nil {
		return DriftStats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := DriftStats{Samples: r.samples, MaxRatio: r.maxRatio}
	if r.samples > 0 {
		stats.MeanRatio = r.sumRatio / float64(r.samples)
	}
	return stats
}

// Reset clears accumulated samples after a report.
func (r *DriftRecorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.samples = 0
	r.sumRatio = 0
	r.maxRatio = 0
	r.mu.Unlock()
}

var _ core.TokenEstimator = CharEstimator{}
