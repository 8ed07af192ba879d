// Package service contains the business logic layer.
//
// This file implements design generation: quota gating, calling the
// generation backend, and storing the print file plus thumbnail.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/design"
	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/repository"
	"github.com/tshopco/tshop/internal/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// DesignService defines AI design generation operations.
type DesignService interface {
	// Generate consumes one quota slot for the subject, produces an image
	// for the prompt, and stores it with a thumbnail. The returned status
	// reflects the subject's remaining quota after this generation.
	Generate(ctx context.Context, subject domain.Subject, prompt string) (*domain.Design, *domain.UsageStatus, error)

	// Get fetches a design by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Design, error)

	// List returns the subject's designs, newest first.
	List(ctx context.Context, subject domain.Subject, limit int32) ([]domain.Design, error)
}

// =============================================================================
// Implementation
// =============================================================================

type designService struct {
	queries    *repository.Queries
	usage      UsageService
	generator  design.Generator
	store      storage.Storage
	thumbnails ThumbnailProcessor
	logger     *slog.Logger
}

// NewDesignService creates a new DesignService.
func NewDesignService(queries *repository.Queries, usage UsageService, generator design.Generator, store storage.Storage, thumbnails ThumbnailProcessor, logger *slog.Logger) DesignService {
	return &designService{
		queries:    queries,
		usage:      usage,
		generator:  generator,
		store:      store,
		thumbnails: thumbnails,
		logger:     logger,
	}
}

// Generate produces and stores one design.
func (s *designService) Generate(ctx context.Context, subject domain.Subject, prompt string) (*domain.Design, *domain.UsageStatus, error) {
	const op = "DesignService.Generate"

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, nil, domain.Invalid(op, "Prompt is required")
	}
	if len(prompt) > domain.MaxPromptLength {
		return nil, nil, domain.Invalid(op, "Prompt is too long")
	}

	// Quota is consumed up front so two concurrent requests cannot both
	// squeeze through the last slot; a failed generation refunds it below.
	status, err := s.usage.Consume(ctx, subject)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.generator.Generate(ctx, design.GenerateParams{Prompt: prompt})
	if err != nil {
		s.logger.Error("design generation failed", "op", op, "subject", subject.Key(), "error", err)
		// The backend produced nothing, so the slot goes back. Failures
		// after this point keep it: the paid API has already run.
		if refundErr := s.usage.Refund(ctx, subject); refundErr != nil {
			s.logger.Error("usage refund failed", "op", op, "subject", subject.Key(), "error", refundErr)
		}
		switch {
		case errors.Is(err, design.EContentPolicy), errors.Is(err, design.EInvalidPrompt):
			return nil, nil, domain.Wrap(err, domain.EINVALID, op, "The prompt was rejected. Please rephrase it.")
		default:
			return nil, nil, domain.Wrap(err, domain.EPROVIDER, op, "Design generation is temporarily unavailable. Please try again later.")
		}
	}

	if !storage.IsAllowedArtworkType(result.ContentType) {
		s.logger.Error("backend returned unusable artwork",
			"op", op, "subject", subject.Key(), "content_type", result.ContentType)
		if refundErr := s.usage.Refund(ctx, subject); refundErr != nil {
			s.logger.Error("usage refund failed", "op", op, "subject", subject.Key(), "error", refundErr)
		}
		return nil, nil, domain.Errorf(domain.EPROVIDER, op, "Design generation is temporarily unavailable. Please try again later.")
	}

	designID := uuid.New()
	imageKey := storage.DesignKey(designID, extensionFor(result.ContentType))
	err = s.store.Put(ctx, imageKey, bytes.NewReader(result.ImageData), storage.PutOptions{
		ContentType: result.ContentType,
		Public:      true,
	})
	if err != nil {
		return nil, nil, domain.Internal(err, op, "Failed to store design image")
	}
	imageURL, err := s.store.URL(ctx, imageKey, 0)
	if err != nil {
		return nil, nil, domain.Internal(err, op, "Failed to resolve design image URL")
	}

	d := &domain.Design{
		ID:         designID,
		SubjectKey: subject.Key(),
		Prompt:     prompt,
		ImageKey:   imageKey,
		ImageURL:   imageURL,
		Model:      result.Model,
		CostCents:  int32(result.CostCents),
	}

	// Thumbnails are best effort; the full-size image is what matters.
	thumbData, _, _, err := s.thumbnails.GenerateThumbnail(
		bytes.NewReader(result.ImageData), domain.ThumbnailMaxWidth, domain.ThumbnailMaxHeight)
	if err != nil {
		s.logger.Warn("thumbnail generation failed", "op", op, "design_id", designID, "error", err)
	} else {
		thumbKey := storage.DesignThumbnailKey(designID)
		err = s.store.Put(ctx, thumbKey, bytes.NewReader(thumbData), storage.PutOptions{
			ContentType: "image/jpeg",
			Public:      true,
		})
		if err != nil {
			s.logger.Warn("thumbnail upload failed", "op", op, "design_id", designID, "error", err)
		} else if url, err := s.store.URL(ctx, thumbKey, 0); err == nil {
			d.ThumbnailKey = thumbKey
			d.ThumbnailURL = url
		}
	}

	if err := s.queries.CreateDesign(ctx, d); err != nil {
		return nil, nil, domain.Internal(err, op, "Failed to save design")
	}

	s.logger.Info("design generated",
		"op", op,
		"design_id", designID,
		"subject", subject.Key(),
		"model", result.Model,
		"cost_cents", result.CostCents,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return d, status, nil
}

// Get fetches a design by ID.
func (s *designService) Get(ctx context.Context, id uuid.UUID) (*domain.Design, error) {
	const op = "DesignService.Get"

	d, err := s.queries.GetDesign(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "design", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to load design")
	}
	return d, nil
}

// List returns the subject's designs, newest first.
func (s *designService) List(ctx context.Context, subject domain.Subject, limit int32) ([]domain.Design, error) {
	const op = "DesignService.List"

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	designs, err := s.queries.ListDesignsBySubject(ctx, subject.Key(), limit)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list designs")
	}
	return designs, nil
}

// extensionFor maps a content type to a file extension for storage keys.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
