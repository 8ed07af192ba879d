// Package httpapi implements the design.Generator interface against a
// hosted image generation HTTP API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tshopco/tshop/internal/design"
)

const (
	// DefaultWidth and DefaultHeight are the output dimensions when the
	// caller leaves them unset. Square print files suit every placement.
	DefaultWidth  = 1024
	DefaultHeight = 1024
)

// Config contains configuration for the HTTP generation backend
type Config struct {
	APIURL string
	APIKey string
	design.Config
}

// Provider implements design.Generator against a JSON generation API.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new HTTP generation provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIURL == "" {
		return nil, fmt.Errorf("design API URL is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("design API key is required")
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = 1 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Generate produces an image for the prompt.
func (p *Provider) Generate(ctx context.Context, params design.GenerateParams) (*design.Result, error) {
	startTime := time.Now()

	if params.Prompt == "" {
		return nil, design.WrapError("generate", design.EInvalidPrompt)
	}
	if params.Width == 0 {
		params.Width = DefaultWidth
	}
	if params.Height == 0 {
		params.Height = DefaultHeight
	}

	bodyBytes, err := json.Marshal(apiRequest{
		Prompt: params.Prompt,
		Width:  params.Width,
		Height: params.Height,
	})
	if err != nil {
		return nil, design.WrapError("marshal request", err)
	}

	resp, err := p.executeWithRetry(ctx, bodyBytes)
	if err != nil {
		return nil, design.WrapError("execute request", err)
	}

	imageData, err := base64.StdEncoding.DecodeString(resp.ImageB64)
	if err != nil {
		return nil, design.WrapError("decode image", err)
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	return &design.Result{
		ImageData:   imageData,
		ContentType: contentType,
		Model:       resp.Model,
		CostCents:   resp.CostCents,
		Duration:    time.Since(startTime),
	}, nil
}

// executeWithRetry executes the request with exponential backoff retry
func (p *Provider) executeWithRetry(ctx context.Context, bodyBytes []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, bodyBytes)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !design.IsRetryable(err) {
			return nil, err
		}
		if attempt >= p.config.MaxRetries {
			break
		}

		delay := p.config.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying design request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, bodyBytes []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, design.EUnavailable
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, respBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to generation errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return design.EUnauthorized
	case http.StatusTooManyRequests:
		return design.ERateLimit
	case http.StatusRequestTimeout:
		return design.ETimeout
	case http.StatusBadRequest:
		if errResp.Code == "content_policy" {
			return design.EContentPolicy
		}
		return fmt.Errorf("%w: %s", design.EInvalidPrompt, errResp.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return design.EUnavailable
	default:
		return fmt.Errorf("design API error (status %d): %s", statusCode, errResp.Message)
	}
}

// API request/response types

type apiRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiResponse struct {
	ImageB64    string `json:"image_b64"`
	ContentType string `json:"content_type"`
	Model       string `json:"model"`
	CostCents   int    `json:"cost_cents"`
}

type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
