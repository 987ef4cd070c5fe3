package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ModelPredict classifies text with the resolver's model, loading it on
// first use, and returns the topK ranked labels.
func ModelPredict(ctx context.Context, r *Resolver, text string, topK int) (*PredictionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: missing 'text' as string", ErrValidation)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrValidation, topK)
	}

	ready, err := r.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	out, err := ready.Model.Predict(ctx, text)
	if err != nil {
		if !errors.Is(err, ErrInference) {
			err = fmt.Errorf("%w: %w", ErrInference, err)
		}
		return nil, err
	}
	scores, err := out.Flatten()
	if err != nil {
		return nil, err
	}
	results, err := Rank(scores, ready.Labels, topK)
	if err != nil {
		return nil, err
	}
	return &PredictionResult{Results: results}, nil
}
