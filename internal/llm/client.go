package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends one system+user exchange and returns the raw reply text.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	RetryDelay      time.Duration
	MaxRetries      int
	RateLimit       int
	ConfidenceFloor int
	Temperature     float64
	MaxTokens       int
}
