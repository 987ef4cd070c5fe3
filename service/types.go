package service

import (
	"context"
	"fmt"
)

type ScoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type PredictionResult struct {
	Results []ScoredLabel `json:"results"`
}

// Output is the raw tensor a model produces for one input.
type Output struct {
	Shape []int64
	Data  []float32
}

// Flatten returns the per-class scores of a single input. A leading batch
// dimension of size one is unwrapped; anything else is a shape error.
func (o Output) Flatten() ([]float32, error) {
	var n int64 = 1
	for _, d := range o.Shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: unresolved dimension in output shape %v", ErrInference, o.Shape)
		}
		n *= d
	}
	if len(o.Shape) == 0 || n != int64(len(o.Data)) {
		return nil, fmt.Errorf("%w: output shape %v does not match %d values", ErrInference, o.Shape, len(o.Data))
	}
	switch len(o.Shape) {
	case 1:
		return o.Data, nil
	case 2:
		if o.Shape[0] != 1 {
			return nil, fmt.Errorf("%w: expected a batch of one, got %d rows", ErrInference, o.Shape[0])
		}
		return o.Data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output rank %d", ErrInference, len(o.Shape))
	}
}

// Model is a loaded classifier. Implementations must be safe for concurrent use.
type Model interface {
	Predict(ctx context.Context, text string) (Output, error)
	Close() error
}

// Ready is the state published by a Resolver once loading succeeds.
type Ready struct {
	Model  Model
	Labels []string
	Dir    string
}
