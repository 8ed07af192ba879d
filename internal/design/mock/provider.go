package mock

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tshopco/tshop/internal/design"
)

// Provider is a mock generator for testing and development. It renders a
// deterministic solid-color image derived from the prompt so the storage
// and thumbnail pipeline can run without a real backend.
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	GenerateResponse *design.Result
	GenerateError    error

	// Call tracking for testing
	GenerateCalls int
}

// New creates a new mock generator
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Generate returns a deterministic placeholder image
func (p *Provider) Generate(ctx context.Context, params design.GenerateParams) (*design.Result, error) {
	p.GenerateCalls++

	// If a custom response or error is set, use it
	if p.GenerateError != nil {
		return nil, p.GenerateError
	}
	if p.GenerateResponse != nil {
		return p.GenerateResponse, nil
	}

	width, height := params.Width, params.Height
	if width == 0 {
		width = 512
	}
	if height == 0 {
		height = 512
	}

	// Same prompt, same color
	h := fnv.New32a()
	h.Write([]byte(params.Prompt))
	sum := h.Sum32()
	fill := color.NRGBA{
		R: uint8(sum),
		G: uint8(sum >> 8),
		B: uint8(sum >> 16),
		A: 255,
	}

	img := imaging.New(width, height, fill)

	// Darker band across the middle so thumbnails are visibly distinct
	// from blank files.
	band := imaging.New(width, height/8, color.NRGBA{R: fill.R / 2, G: fill.G / 2, B: fill.B / 2, A: 255})
	img = imaging.Paste(img, band, image.Pt(0, height/2))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, design.WrapError("encode mock image", err)
	}

	return &design.Result{
		ImageData:   buf.Bytes(),
		ContentType: "image/png",
		Model:       "mock-design-v1",
		CostCents:   4,
		Duration:    50 * time.Millisecond,
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.GenerateCalls = 0
	p.GenerateResponse = nil
	p.GenerateError = nil
}
