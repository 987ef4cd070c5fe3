package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelsOf(results []ScoredLabel) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Label
	}
	return out
}

func TestIsProbability(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		want   bool
	}{
		{"normalized", []float32{0.7, 0.2, 0.1}, true},
		{"within tolerance", []float32{0.5, 0.495}, true},
		{"negative", []float32{-0.1, 0.6, 0.5}, false},
		{"above one", []float32{2.0, 1.0, 0.1}, false},
		{"does not sum to one", []float32{0.3, 0.3, 0.3}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProbability(tt.scores))
		})
	}
}

func TestSoftmax_Stable(t *testing.T) {
	probs := Softmax([]float32{1000, 1000})
	assert.InDelta(t, 0.5, probs[0], 1e-9)
	assert.InDelta(t, 0.5, probs[1], 1e-9)
	assert.Empty(t, Softmax(nil))
}

func TestRank_LogitsAreSoftmaxed(t *testing.T) {
	got, err := Rank([]float32{2.0, 1.0, 0.1}, nil, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	var sum float64
	for _, r := range got {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		sum += r.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, []string{"0", "1", "2"}, labelsOf(got))
	assert.InDelta(t, 0.659, got[0].Score, 1e-3)
}

func TestRank_ProbabilitiesPassThrough(t *testing.T) {
	got, err := Rank([]float32{0.7, 0.2, 0.1}, []string{"joy", "sadness", "anger"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"joy", "sadness", "anger"}, labelsOf(got))
	assert.InDelta(t, 0.7, got[0].Score, 1e-6)
	assert.InDelta(t, 0.2, got[1].Score, 1e-6)
	assert.InDelta(t, 0.1, got[2].Score, 1e-6)
}

func TestRank_OrderAndTopK(t *testing.T) {
	got, err := Rank([]float32{0.1, 0.7, 0.2}, []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Label)
	assert.InDelta(t, 0.7, got[0].Score, 1e-6)
	assert.Equal(t, "c", got[1].Label)
	assert.InDelta(t, 0.2, got[1].Score, 1e-6)
}

func TestRank_TopKLargerThanClasses(t *testing.T) {
	got, err := Rank([]float32{0.1, 0.7, 0.2}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRank_LabelMismatchFallsBackToIndices(t *testing.T) {
	scores := []float32{0.2, 0.5, 0.3}
	for _, labels := range [][]string{nil, {}, {"a", "b"}, {"a", "b", "c", "d"}} {
		got, err := Rank(scores, labels, 3)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"0", "1", "2"}, labelsOf(got))
	}
}

func TestRank_UsesLabelsWhenLengthsMatch(t *testing.T) {
	labels := []string{"anger", "fear", "joy", "love"}
	got, err := Rank([]float32{-1, 3, 0.5, 2}, labels, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"fear", "love", "joy", "anger"}, labelsOf(got))
	for _, r := range got {
		assert.Contains(t, labels, r.Label)
	}
}

func TestRank_TiesKeepIndexOrder(t *testing.T) {
	got, err := Rank([]float32{0.25, 0.25, 0.25, 0.25}, []string{"w", "x", "y", "z"}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "x", "y", "z"}, labelsOf(got))
}

func TestRank_Deterministic(t *testing.T) {
	scores := []float32{3.2, -1, 0.4, 3.2, 1.1}
	labels := []string{"a", "b", "c", "d", "e"}
	first, err := Rank(scores, labels, 3)
	require.NoError(t, err)
	second, err := Rank(scores, labels, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []float32{3.2, -1, 0.4, 3.2, 1.1}, scores)
}

func TestRank_Errors(t *testing.T) {
	_, err := Rank([]float32{0.5, 0.5}, nil, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Rank([]float32{float32(math.NaN()), 1}, nil, 1)
	assert.ErrorIs(t, err, ErrInference)

	_, err = Rank([]float32{float32(math.Inf(1)), 1}, nil, 1)
	assert.ErrorIs(t, err, ErrInference)
}

func TestOutput_Flatten(t *testing.T) {
	flat, err := Output{Shape: []int64{3}, Data: []float32{1, 2, 3}}.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, flat)

	flat, err = Output{Shape: []int64{1, 3}, Data: []float32{1, 2, 3}}.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, flat)

	for _, bad := range []Output{
		{Shape: []int64{2, 2}, Data: []float32{1, 2, 3, 4}},
		{Shape: []int64{1, 1, 3}, Data: []float32{1, 2, 3}},
		{Shape: []int64{1, 4}, Data: []float32{1, 2, 3}},
		{Shape: []int64{-1, 3}, Data: []float32{1, 2, 3}},
		{Data: []float32{1}},
	} {
		_, err := bad.Flatten()
		assert.ErrorIs(t, err, ErrInference, "shape %v", bad.Shape)
	}
}
