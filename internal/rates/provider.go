// Package rates defines the carrier rate provider capability and its two
// implementations: the live Melhor Envio HTTP client and a deterministic
// weight-tier estimator used when no credentials are configured.
package rates

import (
	"context"
	"errors"
)

// Provider names reported by Name and surfaced on quote results.
const (
	ProviderMelhorEnvio = "melhorenvio"
	ProviderEstimate    = "estimate"
)

var (
	// ErrCredentials indicates the upstream rejected or lacked credentials.
	// Operator-visible; never retried.
	ErrCredentials = errors.New("rates: provider rejected credentials")
	// ErrTimeout indicates the upstream call exceeded its deadline. Retryable
	// by the caller.
	ErrTimeout = errors.New("rates: provider request timed out")
	// ErrMalformedResponse indicates the upstream answered with an unexpected
	// body shape.
	ErrMalformedResponse = errors.New("rates: malformed provider response")
)

// Parcel is a provider-ready line item: weight and dimensions already clamped
// to the carrier's parcel floor.
type Parcel struct {
	ID       string
	WeightKg float64
	WidthCm  float64
	HeightCm float64
	LengthCm float64
	Quantity int
}

// Request describes one rate lookup.
type Request struct {
	FromPostalCode string
	ToPostalCode   string
	Parcels        []Parcel
}

// Quote is a single raw carrier offer before allow-list filtering and ranking.
type Quote struct {
	Service            string
	Company            string
	CompanyID          int
	PriceCents         int64
	OriginalPriceCents int64
	DeliveryDays       int
	DeliveryMin        int
	DeliveryMax        int
	LogoURL            string
	Currency           string
}

// Provider produces carrier quotes for a parcel set. Implementations must be
// safe for concurrent use.
type Provider interface {
	Name() string
	Quote(ctx context.Context, req Request) ([]Quote, error)
}
