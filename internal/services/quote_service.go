package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zark-commerce/api/internal/domain"
	"github.com/zark-commerce/api/internal/platform/observability"
	"github.com/zark-commerce/api/internal/rates"
)

var (
	// ErrInvalidPostalCode signals a destination CEP that fails the structural check.
	ErrInvalidPostalCode = errors.New("quotes: invalid destination postal code")
	// ErrEmptyCart signals a quote request without line items.
	ErrEmptyCart = errors.New("quotes: cart has no items")
)

// LineItemError names the cart entry that is missing the physical attributes
// a shipping quote requires. The whole request fails; no defaults are substituted.
type LineItemError struct {
	ProductID string
}

// Error implements the error interface.
func (e *LineItemError) Error() string {
	return fmt.Sprintf("quotes: product %q has no weight or dimensions configured", e.ProductID)
}

// RateQuoteService is the capability consumed by the HTTP layer.
type RateQuoteService interface {
	CalculateRates(ctx context.Context, destinationZip string, items []domain.CartLineItem) (QuoteResult, error)
	ValidatePostalCode(code string) bool
}

// QuoteResult is the complete, consistent outcome of one rate calculation.
type QuoteResult struct {
	Options  []domain.RateOption
	FromZip  string
	ToZip    string
	Estimate bool
}

// QuoteServiceDeps wires the quote engine's provider and business constants.
type QuoteServiceDeps struct {
	Provider        rates.Provider
	OriginZip       string
	AllowedCarriers []string
	MinWidthCm      float64
	MinHeightCm     float64
	MinLengthCm     float64
	MinWeightKg     float64
	CacheTTL        time.Duration
	Now             func() time.Time
}

// QuoteService converts cart physical attributes plus a destination CEP into
// a ranked list of carrier options, caching successes per fingerprint.
type QuoteService struct {
	provider rates.Provider
	origin   string
	carriers []string
	minDims  struct{ width, height, length float64 }
	minKg    float64
	estimate bool
	cache    *quoteCache
	now      func() time.Time
}

// NewQuoteService validates the origin CEP once and fixes the provider for the
// process lifetime; fallback selection never happens per request.
func NewQuoteService(deps QuoteServiceDeps) (*QuoteService, error) {
	if deps.Provider == nil {
		return nil, errors.New("quotes: provider is required")
	}
	origin := domain.NormalizePostalCode(deps.OriginZip)
	if !domain.ValidPostalCode(origin) {
		return nil, fmt.Errorf("quotes: invalid origin postal code %q", deps.OriginZip)
	}
	if len(deps.AllowedCarriers) == 0 {
		return nil, errors.New("quotes: carrier allow-list is required")
	}
	carriers := make([]string, 0, len(deps.AllowedCarriers))
	for _, carrier := range deps.AllowedCarriers {
		trimmed := strings.ToLower(strings.TrimSpace(carrier))
		if trimmed != "" {
			carriers = append(carriers, trimmed)
		}
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	svc := &QuoteService{
		provider: deps.Provider,
		origin:   origin,
		carriers: carriers,
		minKg:    deps.MinWeightKg,
		estimate: deps.Provider.Name() == rates.ProviderEstimate,
		now:      now,
		cache:    newQuoteCache(ttl, now),
	}
	svc.minDims.width = deps.MinWidthCm
	svc.minDims.height = deps.MinHeightCm
	svc.minDims.length = deps.MinLengthCm
	return svc, nil
}

// ValidatePostalCode exposes the pure structural CEP check for pre-validation endpoints.
func (s *QuoteService) ValidatePostalCode(code string) bool {
	return domain.ValidPostalCode(code)
}

// CalculateRates returns the allow-listed carrier options sorted ascending by
// price, with the cheapest flagged. Identical requests within the cache TTL
// never reach the provider a second time.
func (s *QuoteService) CalculateRates(ctx context.Context, destinationZip string, items []domain.CartLineItem) (QuoteResult, error) {
	destination := domain.NormalizePostalCode(destinationZip)
	if !domain.ValidPostalCode(destination) {
		return QuoteResult{}, ErrInvalidPostalCode
	}
	if len(items) == 0 {
		return QuoteResult{}, ErrEmptyCart
	}

	parcels := make([]rates.Parcel, 0, len(items))
	for _, item := range items {
		if !item.HasPhysicalAttributes() {
			return QuoteResult{}, &LineItemError{ProductID: item.ID}
		}
		if item.Quantity <= 0 {
			return QuoteResult{}, &LineItemError{ProductID: item.ID}
		}
		parcels = append(parcels, s.clampParcel(item))
	}

	logger := observability.FromContext(ctx)
	key := fingerprint(destination, items)
	if cached, ok := s.cache.Get(key); ok {
		logger.Debug("shipping quote served from cache", zap.String("fingerprint", key))
		return cached, nil
	}

	quotes, err := s.provider.Quote(ctx, rates.Request{
		FromPostalCode: s.origin,
		ToPostalCode:   destination,
		Parcels:        parcels,
	})
	if err != nil {
		return QuoteResult{}, err
	}

	result := QuoteResult{
		Options:  s.rankQuotes(quotes),
		FromZip:  s.origin,
		ToZip:    destination,
		Estimate: s.estimate,
	}
	s.cache.Set(key, result)
	logger.Info("shipping quote calculated",
		zap.String("to_zip", destination),
		zap.Int("options", len(result.Options)),
		zap.Bool("estimate", result.Estimate),
	)
	return result, nil
}

// SweepQuoteCache reclaims expired cache entries; main runs it on a timer.
func (s *QuoteService) SweepQuoteCache(ctx context.Context) int {
	removed := s.cache.Sweep()
	if removed > 0 {
		observability.FromContext(ctx).Debug("quote cache swept",
			zap.Int("removed", removed),
			zap.Int("remaining", s.cache.Len()),
		)
	}
	return removed
}

// clampParcel raises weight and dimensions to the carrier parcel floor. The
// clamp only ever grows a value, never shrinks it.
func (s *QuoteService) clampParcel(item domain.CartLineItem) rates.Parcel {
	return rates.Parcel{
		ID:       item.ID,
		WeightKg: maxFloat(item.WeightKg, s.minKg),
		WidthCm:  maxFloat(item.WidthCm, s.minDims.width),
		HeightCm: maxFloat(item.HeightCm, s.minDims.height),
		LengthCm: maxFloat(item.LengthCm, s.minDims.length),
		Quantity: item.Quantity,
	}
}

func (s *QuoteService) rankQuotes(quotes []rates.Quote) []domain.RateOption {
	filtered := make([]rates.Quote, 0, len(quotes))
	for _, quote := range quotes {
		if s.carrierAllowed(quote.Company) {
			filtered = append(filtered, quote)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].PriceCents < filtered[j].PriceCents
	})

	options := make([]domain.RateOption, 0, len(filtered))
	for i, quote := range filtered {
		options = append(options, domain.RateOption{
			ID:                 optionID(quote.Company, quote.Service),
			Service:            quote.Service,
			Company:            quote.Company,
			CompanyID:          quote.CompanyID,
			PriceCents:         quote.PriceCents,
			OriginalPriceCents: quote.OriginalPriceCents,
			DeliveryDays:       quote.DeliveryDays,
			DeliveryRange:      domain.DeliveryRange{Min: quote.DeliveryMin, Max: quote.DeliveryMax},
			IsCheapest:         i == 0,
			LogoURL:            quote.LogoURL,
			Currency:           quote.Currency,
		})
	}
	return options
}

func (s *QuoteService) carrierAllowed(company string) bool {
	name := strings.ToLower(company)
	for _, allowed := range s.carriers {
		if strings.Contains(name, allowed) {
			return true
		}
	}
	return false
}

// fingerprint derives the cache key from the destination and the cart's
// id/quantity pairs in order. Dimensions are a function of the product id, so
// they do not participate.
func fingerprint(destination string, items []domain.CartLineItem) string {
	var b strings.Builder
	b.WriteString(destination)
	for _, item := range items {
		b.WriteByte('|')
		b.WriteString(item.ID)
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(item.Quantity))
	}
	return b.String()
}

func optionID(company, service string) string {
	slug := func(value string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), " ", "-")
	}
	return slug(company) + "-" + slug(service)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
