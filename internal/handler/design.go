// Package handler contains the HTTP handlers for the service's JSON API.
//
// This file implements design generation endpoints.
//
// Routes:
//   - POST /api/designs/generate -> HandleGenerate
//   - GET  /api/designs          -> HandleList
//   - GET  /api/designs/{id}     -> HandleGet
//   - GET  /api/usage            -> HandleUsage
//
// All routes run behind the subject middleware, which resolves the guest
// identity used for quota accounting.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/metrics"
	"github.com/tshopco/tshop/internal/middleware"
	"github.com/tshopco/tshop/internal/service"
)

// defaultDesignListLimit bounds GET /api/designs.
const defaultDesignListLimit = 50

// DesignHandler serves AI design generation and retrieval.
type DesignHandler struct {
	designs service.DesignService
	usage   service.UsageService
	logger  *slog.Logger
}

// NewDesignHandler creates a new DesignHandler.
func NewDesignHandler(designs service.DesignService, usage service.UsageService, logger *slog.Logger) *DesignHandler {
	return &DesignHandler{
		designs: designs,
		usage:   usage,
		logger:  logger,
	}
}

// RegisterRoutes registers design routes on the provided mux. The generate
// route gets its own rate limit on top of the shared subject middleware.
func (h *DesignHandler) RegisterRoutes(mux *http.ServeMux, subject *middleware.SubjectMiddleware, limits *middleware.APIRateLimiter) {
	mux.Handle("POST /api/designs/generate",
		limits.LimitGenerate(subject.WithSubject(http.HandlerFunc(h.HandleGenerate))))
	mux.Handle("GET /api/designs", subject.WithSubject(http.HandlerFunc(h.HandleList)))
	mux.Handle("GET /api/designs/{id}", subject.WithSubject(http.HandlerFunc(h.HandleGet)))
	mux.Handle("GET /api/usage", subject.WithSubject(http.HandlerFunc(h.HandleUsage)))
}

// generateRequest is the POST /api/designs/generate request body.
type generateRequest struct {
	Prompt string `json:"prompt"`
}

// designResponse is the wire shape of a stored design.
type designResponse struct {
	ID           uuid.UUID `json:"id"`
	Prompt       string    `json:"prompt"`
	ImageURL     string    `json:"image_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Model        string    `json:"model"`
	CreatedAt    string    `json:"created_at"`
}

// usageResponse is the wire shape of a subject's quota status.
type usageResponse struct {
	Tier             domain.Tier `json:"tier"`
	RemainingDaily   int         `json:"remaining_daily"`
	RemainingMonthly int         `json:"remaining_monthly"`
	ResetsAt         string      `json:"resets_at"`
}

// HandleGenerate consumes one quota slot and produces a design.
func (h *DesignHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	design, status, err := h.designs.Generate(r.Context(), subject, req.Prompt)
	if err != nil {
		var qe *domain.QuotaExceededError
		if errors.As(err, &qe) {
			metrics.GenerationsDenied.WithLabelValues(string(subject.Tier)).Inc()
		} else {
			metrics.DesignsGenerated.WithLabelValues("error").Inc()
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}
	metrics.DesignsGenerated.WithLabelValues("ok").Inc()
	metrics.GenerationCostCentsTotal.Add(float64(design.CostCents))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"design": toDesignResponse(design),
		"usage":  toUsageResponse(status),
	})
}

// HandleGet fetches one design.
func (h *DesignHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid design ID"))
		return
	}

	design, err := h.designs.Get(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"design": toDesignResponse(design)})
}

// HandleList returns the subject's designs, newest first.
func (h *DesignHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	designs, err := h.designs.List(r.Context(), subject, defaultDesignListLimit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]designResponse, 0, len(designs))
	for i := range designs {
		out = append(out, toDesignResponse(&designs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"designs": out})
}

// HandleUsage returns the subject's quota status without consuming anything.
func (h *DesignHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	status, err := h.usage.GetUsage(r.Context(), subject)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"usage": toUsageResponse(status)})
}

func toDesignResponse(d *domain.Design) designResponse {
	return designResponse{
		ID:           d.ID,
		Prompt:       d.Prompt,
		ImageURL:     d.ImageURL,
		ThumbnailURL: d.ThumbnailURL,
		Model:        d.Model,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toUsageResponse(s *domain.UsageStatus) usageResponse {
	return usageResponse{
		Tier:             s.Tier,
		RemainingDaily:   s.RemainingDaily,
		RemainingMonthly: s.RemainingMonthly,
		ResetsAt:         s.ResetsAt.UTC().Format(time.RFC3339),
	}
}
