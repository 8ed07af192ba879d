// Package service contains the business logic layer.
//
// This file implements quote aggregation and provider selection: fanning a
// quote request out to every configured provider concurrently, then picking
// a winner according to the checkout strategy.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/fulfillment"
	"github.com/tshopco/tshop/internal/metrics"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuoteService defines quote aggregation and provider selection.
type QuoteService interface {
	// GetQuotes requests a quote from every configured provider
	// concurrently and returns the ones that answered in time. Individual
	// provider failures are tolerated; an error is returned only when no
	// provider produced a quote.
	GetQuotes(ctx context.Context, req domain.QuoteRequest) ([]domain.Quote, error)

	// Select picks the winning quote for the strategy. Quotes that cannot
	// fulfill every line item are disqualified before ranking.
	Select(quotes []domain.Quote, strategy domain.Strategy) (*domain.Quote, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quoteService struct {
	providers   []fulfillment.Provider
	timeout     time.Duration
	qualityRank map[string]int
	logger      *slog.Logger
}

// NewQuoteService creates a new QuoteService. qualityRanking lists provider
// names best-first for the quality strategy; unranked providers sort last.
func NewQuoteService(providers []fulfillment.Provider, timeout time.Duration, qualityRanking []string, logger *slog.Logger) QuoteService {
	rank := make(map[string]int, len(qualityRanking))
	for i, name := range qualityRanking {
		if _, ok := rank[name]; !ok {
			rank[name] = i
		}
	}
	return &quoteService{
		providers:   providers,
		timeout:     timeout,
		qualityRank: rank,
		logger:      logger,
	}
}

type quoteResult struct {
	provider string
	quote    *domain.Quote
	err      error
}

// GetQuotes fans the request out to all providers with a per-provider
// timeout and collects whatever comes back.
func (s *quoteService) GetQuotes(ctx context.Context, req domain.QuoteRequest) ([]domain.Quote, error) {
	const op = "QuoteService.GetQuotes"

	if err := req.Validate(op); err != nil {
		return nil, err
	}
	if len(s.providers) == 0 {
		return nil, domain.ProviderUnavailable(op)
	}

	results := make(chan quoteResult, len(s.providers))
	for _, p := range s.providers {
		go func(p fulfillment.Provider) {
			qctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			start := time.Now()
			quote, err := p.GetQuote(qctx, req)
			metrics.QuoteDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
			metrics.QuoteRequestsTotal.WithLabelValues(p.Name(), quoteOutcome(err)).Inc()
			results <- quoteResult{provider: p.Name(), quote: quote, err: err}
		}(p)
	}

	quotes := make([]domain.Quote, 0, len(s.providers))
	for range s.providers {
		res := <-results
		if res.err != nil {
			// A slow or failing provider only loses its own slot.
			s.logger.Warn("provider quote failed", "op", op, "provider", res.provider, "error", res.err)
			continue
		}
		quotes = append(quotes, *res.quote)
	}

	if len(quotes) == 0 {
		return nil, domain.ProviderUnavailable(op)
	}

	// Channel arrival order is nondeterministic; fix it for callers.
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Provider < quotes[j].Provider
	})
	return quotes, nil
}

// Select ranks the eligible quotes for the strategy and returns the winner.
//
// Ties are broken deterministically: equal primary criteria fall through to
// the secondary one, and identical quotes resolve by provider name. The same
// input always selects the same provider.
func (s *quoteService) Select(quotes []domain.Quote, strategy domain.Strategy) (*domain.Quote, error) {
	const op = "QuoteService.Select"

	if !strategy.IsValid() {
		return nil, domain.Invalid(op, "Unknown selection strategy")
	}

	// Availability is a hard filter, not a ranking signal.
	eligible := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.AllItemsAvailable() {
			eligible = append(eligible, q)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ProviderUnavailable(op)
	}

	sort.SliceStable(eligible, s.less(strategy, eligible))

	winner := eligible[0]
	metrics.ProviderSelections.WithLabelValues(winner.Provider, strategy.String()).Inc()
	return &winner, nil
}

// quoteOutcome labels a provider quote attempt for metrics.
func quoteOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, fulfillment.ETimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (s *quoteService) less(strategy domain.Strategy, quotes []domain.Quote) func(i, j int) bool {
	switch strategy {
	case domain.StrategySpeed:
		return func(i, j int) bool {
			a, b := quotes[i], quotes[j]
			if a.ProductionTime != b.ProductionTime {
				return a.ProductionTime < b.ProductionTime
			}
			if a.TotalCents != b.TotalCents {
				return a.TotalCents < b.TotalCents
			}
			return a.Provider < b.Provider
		}
	case domain.StrategyQuality:
		return func(i, j int) bool {
			a, b := quotes[i], quotes[j]
			ra, rb := s.rankOf(a.Provider), s.rankOf(b.Provider)
			if ra != rb {
				return ra < rb
			}
			if a.TotalCents != b.TotalCents {
				return a.TotalCents < b.TotalCents
			}
			return a.Provider < b.Provider
		}
	default: // domain.StrategyCost
		return func(i, j int) bool {
			a, b := quotes[i], quotes[j]
			if a.TotalCents != b.TotalCents {
				return a.TotalCents < b.TotalCents
			}
			if a.ProductionTime != b.ProductionTime {
				return a.ProductionTime < b.ProductionTime
			}
			return a.Provider < b.Provider
		}
	}
}

// rankOf returns the quality rank for a provider; unranked providers sort
// after every ranked one.
func (s *quoteService) rankOf(provider string) int {
	if r, ok := s.qualityRank[provider]; ok {
		return r
	}
	return len(s.qualityRank) + 1
}
