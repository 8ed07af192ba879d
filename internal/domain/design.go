// Package domain contains core business types and interfaces.
//
// This file defines the Design type: an AI-generated print image owned by a
// user or guest subject.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Design is one generated print image. The stored image is the full-size
// print file; the thumbnail backs gallery views.
type Design struct {
	ID           uuid.UUID
	SubjectKey   string // Owning subject key ("user:..." or "guest:...")
	Prompt       string
	ImageKey     string // Storage key of the print file
	ImageURL     string
	ThumbnailKey string
	ThumbnailURL string
	Model        string // Generation model identifier
	CostCents    int32  // Generation cost for margin tracking
	CreatedAt    time.Time
}

// MaxPromptLength bounds generation prompts.
const MaxPromptLength = 1000

// Thumbnail rendering constants.
const (
	ThumbnailMaxWidth    = 400
	ThumbnailMaxHeight   = 400
	ThumbnailJPEGQuality = 85
)
