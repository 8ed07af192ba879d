// Package service contains the business logic layer.
//
// This file implements the partner surface: API key issuance and
// authentication for storefront partners, and HMAC-signed outbound webhook
// delivery so partners can mirror order state.
package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/repository"
)

const (
	// partnerKeyPrefixLen is the length of the key prefix used for lookup.
	partnerKeyPrefixLen = 8

	// partnerSignatureHeader carries the HMAC of the delivered payload.
	partnerSignatureHeader = "X-TShop-Signature"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PartnerService defines partner key management and webhook delivery.
type PartnerService interface {
	// Create registers a partner and returns the plaintext API key. The
	// key is shown once; only its bcrypt hash is stored.
	Create(ctx context.Context, name, webhookURL string) (*domain.Partner, string, error)

	// Authenticate resolves a partner from a presented API key.
	Authenticate(ctx context.Context, key string) (*domain.Partner, error)

	// NotifyOrderEvent delivers an order state change to every active
	// partner, signing each payload with the partner's webhook secret.
	NotifyOrderEvent(ctx context.Context, event domain.PartnerOrderEvent) error
}

// =============================================================================
// Implementation
// =============================================================================

type partnerService struct {
	queries *repository.Queries
	client  *http.Client
	logger  *slog.Logger
}

// NewPartnerService creates a new PartnerService.
func NewPartnerService(queries *repository.Queries, logger *slog.Logger) PartnerService {
	return &partnerService{
		queries: queries,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Create registers a partner and returns the plaintext key once.
func (s *partnerService) Create(ctx context.Context, name, webhookURL string) (*domain.Partner, string, error) {
	const op = "PartnerService.Create"

	if strings.TrimSpace(name) == "" {
		return nil, "", domain.Invalid(op, "Partner name is required")
	}

	key, err := generatePartnerKey()
	if err != nil {
		return nil, "", domain.Internal(err, op, "Failed to generate API key")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", domain.Internal(err, op, "Failed to hash API key")
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, "", domain.Internal(err, op, "Failed to generate webhook secret")
	}

	partner := &domain.Partner{
		Name:          strings.TrimSpace(name),
		KeyPrefix:     keyPrefix(key),
		KeyHash:       string(hash),
		WebhookURL:    webhookURL,
		WebhookSecret: secret,
	}
	if err := s.queries.CreatePartner(ctx, partner); err != nil {
		return nil, "", domain.Internal(err, op, "Failed to create partner")
	}

	s.logger.Info("partner created", "op", op, "partner_id", partner.ID, "name", partner.Name)
	return partner, key, nil
}

// Authenticate resolves a partner from a presented API key. The prefix
// narrows the lookup; bcrypt confirms the rest.
func (s *partnerService) Authenticate(ctx context.Context, key string) (*domain.Partner, error) {
	const op = "PartnerService.Authenticate"

	if len(key) < partnerKeyPrefixLen {
		return nil, domain.Unauthorized(op, "Invalid API key")
	}

	partner, err := s.queries.GetPartnerByKeyPrefix(ctx, keyPrefix(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(op, "Invalid API key")
		}
		return nil, domain.Internal(err, op, "Failed to look up partner")
	}
	if !partner.Active {
		return nil, domain.Unauthorized(op, "API key has been revoked")
	}
	if bcrypt.CompareHashAndPassword([]byte(partner.KeyHash), []byte(key)) != nil {
		return nil, domain.Unauthorized(op, "Invalid API key")
	}
	return partner, nil
}

// NotifyOrderEvent delivers the event to every active partner.
func (s *partnerService) NotifyOrderEvent(ctx context.Context, event domain.PartnerOrderEvent) error {
	const op = "PartnerService.NotifyOrderEvent"

	partners, err := s.queries.ListActivePartners(ctx)
	if err != nil {
		return domain.Internal(err, op, "Failed to list partners")
	}
	if len(partners) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Internal(err, op, "Failed to encode event")
	}

	var failed int
	for _, partner := range partners {
		if err := s.deliver(ctx, &partner, payload); err != nil {
			failed++
			s.logger.Warn("partner webhook delivery failed",
				"op", op, "partner_id", partner.ID, "error", err)
		}
	}
	if failed == len(partners) {
		return domain.Errorf(domain.EINTERNAL, op, "all %d partner deliveries failed", failed)
	}
	return nil
}

// deliver posts a signed payload to one partner.
func (s *partnerService) deliver(ctx context.Context, partner *domain.Partner, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, partner.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(partnerSignatureHeader, signPayload(partner.WebhookSecret, payload))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("partner responded with status %d", resp.StatusCode)
	}
	return nil
}

// signPayload computes the hex HMAC-SHA256 of the payload.
func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// generatePartnerKey builds a "tsk_" prefixed random key.
func generatePartnerKey() (string, error) {
	suffix, err := randomHex(24)
	if err != nil {
		return "", err
	}
	return "tsk_" + suffix, nil
}

func keyPrefix(key string) string {
	return key[:partnerKeyPrefixLen]
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
