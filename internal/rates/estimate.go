package rates

import (
	"context"
	"errors"
	"math"
	"sort"
)

// Tier maps a total-shipment-weight breakpoint (kg) to a base price in cents.
// A CatchAll tier prices any shipment heavier than every breakpoint.
type Tier struct {
	MaxWeightKg float64
	PriceCents  int64
	CatchAll    bool
}

// DefaultTiers returns the stock estimate price table.
func DefaultTiers() []Tier {
	return []Tier{
		{MaxWeightKg: 0.1, PriceCents: 1200},
		{MaxWeightKg: 1, PriceCents: 1800},
		{MaxWeightKg: 5, PriceCents: 2500},
		{CatchAll: true, PriceCents: 4500},
	}
}

// estimateService is one synthesized carrier option: a fixed multiplier over
// the tier base price and delivery estimates that tighten for light parcels.
type estimateService struct {
	service    string
	company    string
	companyID  int
	multiplier float64
	lightDays  int
	heavyDays  int
	rangeMin   int
	rangeMax   int
}

var estimateServices = []estimateService{
	{service: "PAC", company: "Correios", companyID: 1, multiplier: 1.0, lightDays: 4, heavyDays: 6, rangeMin: 3, rangeMax: 7},
	{service: "SEDEX", company: "Correios", companyID: 1, multiplier: 1.8, lightDays: 2, heavyDays: 4, rangeMin: 1, rangeMax: 5},
	{service: "Package", company: "Jadlog", companyID: 2, multiplier: 1.4, lightDays: 3, heavyDays: 5, rangeMin: 2, rangeMax: 6},
}

// lightShipmentMaxKg is the cutoff below which the faster delivery estimate applies.
const lightShipmentMaxKg = 1.0

// EstimateProvider prices shipments from a fixed weight-tier table without
// calling any upstream. It keeps checkout usable when the live provider is
// unreachable or unconfigured.
type EstimateProvider struct {
	tiers []Tier
}

// NewEstimateProvider builds the fallback provider over the supplied tier
// table, which must contain at least one catch-all entry.
func NewEstimateProvider(tiers []Tier) (*EstimateProvider, error) {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	hasCatchAll := false
	for _, tier := range tiers {
		if tier.PriceCents <= 0 {
			return nil, errors.New("rates: estimate tier price must be positive")
		}
		if tier.CatchAll {
			hasCatchAll = true
		} else if tier.MaxWeightKg <= 0 {
			return nil, errors.New("rates: estimate tier breakpoint must be positive")
		}
	}
	if !hasCatchAll {
		return nil, errors.New("rates: estimate tiers need a catch-all entry")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CatchAll != sorted[j].CatchAll {
			return !sorted[i].CatchAll
		}
		return sorted[i].MaxWeightKg < sorted[j].MaxWeightKg
	})
	return &EstimateProvider{tiers: sorted}, nil
}

// Name implements the Provider interface.
func (p *EstimateProvider) Name() string { return ProviderEstimate }

// Quote implements the Provider interface deterministically from shipment weight.
func (p *EstimateProvider) Quote(_ context.Context, req Request) ([]Quote, error) {
	totalWeight := 0.0
	for _, parcel := range req.Parcels {
		totalWeight += parcel.WeightKg * float64(parcel.Quantity)
	}

	base := p.basePrice(totalWeight)
	quotes := make([]Quote, 0, len(estimateServices))
	for _, svc := range estimateServices {
		price := int64(math.Round(float64(base) * svc.multiplier))
		days := svc.heavyDays
		if totalWeight <= lightShipmentMaxKg {
			days = svc.lightDays
		}
		quotes = append(quotes, Quote{
			Service:            svc.service,
			Company:            svc.company,
			CompanyID:          svc.companyID,
			PriceCents:         price,
			OriginalPriceCents: price,
			DeliveryDays:       days,
			DeliveryMin:        svc.rangeMin,
			DeliveryMax:        svc.rangeMax,
			Currency:           "BRL",
		})
	}
	return quotes, nil
}

func (p *EstimateProvider) basePrice(totalWeightKg float64) int64 {
	for _, tier := range p.tiers {
		if tier.CatchAll {
			continue
		}
		if totalWeightKg <= tier.MaxWeightKg {
			return tier.PriceCents
		}
	}
	for _, tier := range p.tiers {
		if tier.CatchAll {
			return tier.PriceCents
		}
	}
	return 0
}
