package domain

import "strings"

// CartLineItem is a physical cart entry handed to the rate quote engine by the
// catalog/cart collaborator. Values are immutable once a quote starts.
type CartLineItem struct {
	ID         string
	PriceCents int64
	Quantity   int
	WeightKg   float64
	WidthCm    float64
	HeightCm   float64
	LengthCm   float64
}

// HasPhysicalAttributes reports whether the item carries the weight and the
// three dimensions the shipping provider requires.
func (i CartLineItem) HasPhysicalAttributes() bool {
	return i.WeightKg > 0 && i.WidthCm > 0 && i.HeightCm > 0 && i.LengthCm > 0
}

// DeliveryRange bounds the delivery estimate in business days.
type DeliveryRange struct {
	Min int
	Max int
}

// RateOption is a single priced shipping choice returned to the caller.
// The checkout flow may attach at most one option to an order.
type RateOption struct {
	ID                 string
	Service            string
	Company            string
	CompanyID          int
	PriceCents         int64
	OriginalPriceCents int64
	DeliveryDays       int
	DeliveryRange      DeliveryRange
	IsCheapest         bool
	LogoURL            string
	Currency           string
}

// NormalizePostalCode strips every non-digit character from a postal code.
func NormalizePostalCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPostalCode performs the structural CEP check: exactly eight digits
// after normalization and not an all-repeated-digit placeholder such as
// 00000000 or 99999999.
func ValidPostalCode(code string) bool {
	normalized := NormalizePostalCode(code)
	if len(normalized) != 8 {
		return false
	}
	first := normalized[0]
	for i := 1; i < len(normalized); i++ {
		if normalized[i] != first {
			return true
		}
	}
	return false
}
