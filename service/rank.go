package service

import (
	"fmt"
	"math"
	"slices"
	"strconv"
)

// probabilityTolerance is the relative tolerance used when checking that
// scores sum to one.
const probabilityTolerance = 1e-2

// IsProbability guesses whether scores already form a probability
// distribution. It is a best-effort heuristic, not format introspection:
// scores are treated as logits when any value is negative, any value exceeds
// one, or the sum is not within probabilityTolerance of one. A distribution
// that was truncated or rounded may therefore be misread as logits.
func IsProbability(scores []float32) bool {
	var sum float64
	for _, v := range scores {
		if v < 0 || v > 1 {
			return false
		}
		sum += float64(v)
	}
	return math.Abs(sum-1) <= probabilityTolerance*math.Max(math.Abs(sum), 1)
}

// Softmax converts logits to probabilities, subtracting the max first so
// large logits don't overflow.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	m := float64(slices.Max(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - m)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Rank normalizes scores and returns the topK labels ordered by descending
// score. labels name the classes only when there is one label per score;
// otherwise positional indices are used. Ties keep index order.
func Rank(scores []float32, labels []string, topK int) ([]ScoredLabel, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrValidation, topK)
	}
	for i, v := range scores {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite score %v at index %d", ErrInference, v, i)
		}
	}

	var probs []float64
	if IsProbability(scores) {
		probs = make([]float64, len(scores))
		for i, v := range scores {
			probs[i] = float64(v)
		}
	} else {
		probs = Softmax(scores)
	}

	useLabels := labels != nil && len(labels) == len(scores)
	pairs := make([]ScoredLabel, len(probs))
	for i, p := range probs {
		name := strconv.Itoa(i)
		if useLabels {
			name = labels[i]
		}
		pairs[i] = ScoredLabel{Label: name, Score: p}
	}

	slices.SortStableFunc(pairs, func(a, b ScoredLabel) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topK < len(pairs) {
		pairs = pairs[:topK]
	}
	return pairs, nil
}
