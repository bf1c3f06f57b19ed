package generator

import (
	"context"
	"time"
)

// LLMClient abstracts the text-generation service so it can be swapped or mocked.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider-independent configuration handed to concrete clients.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	// Timeout bounds a single completion call. Zero means no bound.
	Timeout time.Duration
}
