package service

import "errors"

var (
	// ErrConfiguration means no usable model source is configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrModelLoad means a source is present but its artifacts could not be loaded.
	ErrModelLoad = errors.New("model load error")
	// ErrValidation means the request was rejected before reaching the model.
	ErrValidation = errors.New("validation error")
	// ErrInference means the model failed or produced output that cannot be scored.
	ErrInference = errors.New("inference error")
)
