// Package design defines the interface to AI image generation backends.
package design

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Generator is implemented by each image generation backend.
type Generator interface {
	// Generate produces a print-ready image for the prompt.
	Generate(ctx context.Context, params GenerateParams) (*Result, error)
}

// GenerateParams contains parameters for image generation.
type GenerateParams struct {
	Prompt string // User prompt describing the artwork
	Width  int    // Output width in pixels
	Height int    // Output height in pixels
}

// Result contains the generated image and usage metadata.
type Result struct {
	ImageData   []byte        // Raw image bytes
	ContentType string        // MIME type of the image
	Model       string        // Model that produced the image
	CostCents   int           // Estimated generation cost
	Duration    time.Duration // Request duration
}

// Config contains common configuration for generation backends.
type Config struct {
	MaxRetries     int           // Maximum attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for generation operations
var (
	// ERateLimit indicates the backend's rate limit has been exceeded
	ERateLimit = errors.New("design backend rate limit exceeded")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("design request timed out")

	// EUnavailable indicates the backend is temporarily unavailable
	EUnavailable = errors.New("design backend temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("design backend authentication failed")

	// EInvalidPrompt indicates the backend rejected the prompt
	EInvalidPrompt = errors.New("invalid generation prompt")

	// EContentPolicy indicates the prompt violates content policy
	EContentPolicy = errors.New("prompt violates content policy")
)

// IsRetryable returns true if the error is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the generation operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("design %s: %w", operation, err)
}
