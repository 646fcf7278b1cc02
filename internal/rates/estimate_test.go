package rates

import (
	"context"
	"testing"
)

func TestNewEstimateProviderValidatesTiers(t *testing.T) {
	if _, err := NewEstimateProvider([]Tier{{MaxWeightKg: 1, PriceCents: 1000}}); err == nil {
		t.Fatalf("expected error for tier table without catch-all")
	}
	if _, err := NewEstimateProvider([]Tier{{CatchAll: true, PriceCents: 0}}); err == nil {
		t.Fatalf("expected error for non-positive tier price")
	}
	if _, err := NewEstimateProvider([]Tier{{MaxWeightKg: -1, PriceCents: 100}, {CatchAll: true, PriceCents: 100}}); err == nil {
		t.Fatalf("expected error for non-positive breakpoint")
	}
	provider, err := NewEstimateProvider(nil)
	if err != nil {
		t.Fatalf("expected default tiers for empty table, got %v", err)
	}
	if provider.Name() != ProviderEstimate {
		t.Fatalf("unexpected provider name %q", provider.Name())
	}
}

func TestEstimateQuoteLightShipment(t *testing.T) {
	provider, err := NewEstimateProvider(DefaultTiers())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	quotes, err := provider.Quote(context.Background(), Request{
		FromPostalCode: "01310100",
		ToPostalCode:   "04538132",
		Parcels:        []Parcel{{ID: "sku-1", WeightKg: 0.05, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("expected 3 synthesized options, got %d", len(quotes))
	}

	want := map[string]struct {
		priceCents int64
		days       int
		min        int
		max        int
	}{
		"PAC":     {priceCents: 1200, days: 4, min: 3, max: 7},
		"SEDEX":   {priceCents: 2160, days: 2, min: 1, max: 5},
		"Package": {priceCents: 1680, days: 3, min: 2, max: 6},
	}
	for _, quote := range quotes {
		expected, ok := want[quote.Service]
		if !ok {
			t.Fatalf("unexpected service %q", quote.Service)
		}
		if quote.PriceCents != expected.priceCents {
			t.Fatalf("%s price = %d, want %d", quote.Service, quote.PriceCents, expected.priceCents)
		}
		if quote.OriginalPriceCents != expected.priceCents {
			t.Fatalf("%s original price = %d, want %d", quote.Service, quote.OriginalPriceCents, expected.priceCents)
		}
		if quote.DeliveryDays != expected.days {
			t.Fatalf("%s delivery days = %d, want %d", quote.Service, quote.DeliveryDays, expected.days)
		}
		if quote.DeliveryMin != expected.min || quote.DeliveryMax != expected.max {
			t.Fatalf("%s delivery range = [%d,%d], want [%d,%d]",
				quote.Service, quote.DeliveryMin, quote.DeliveryMax, expected.min, expected.max)
		}
		if quote.Currency != "BRL" {
			t.Fatalf("%s currency = %q, want BRL", quote.Service, quote.Currency)
		}
	}
}

func TestEstimateQuoteHeavyShipmentUsesCatchAll(t *testing.T) {
	provider, err := NewEstimateProvider(DefaultTiers())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	// 3 kg per unit, two units: heavier than every breakpoint.
	quotes, err := provider.Quote(context.Background(), Request{
		Parcels: []Parcel{{ID: "sku-1", WeightKg: 3, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	for _, quote := range quotes {
		if quote.Service == "PAC" {
			if quote.PriceCents != 4500 {
				t.Fatalf("PAC price = %d, want catch-all 4500", quote.PriceCents)
			}
			if quote.DeliveryDays != 6 {
				t.Fatalf("PAC delivery days = %d, want slow estimate 6", quote.DeliveryDays)
			}
		}
	}
}

func TestEstimateQuoteWeightBoundary(t *testing.T) {
	provider, err := NewEstimateProvider(DefaultTiers())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	quotes, err := provider.Quote(context.Background(), Request{
		Parcels: []Parcel{{ID: "sku-1", WeightKg: 1, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	for _, quote := range quotes {
		if quote.Service == "PAC" {
			if quote.PriceCents != 1800 {
				t.Fatalf("exactly 1kg should price at the <=1kg tier, got %d", quote.PriceCents)
			}
			if quote.DeliveryDays != 4 {
				t.Fatalf("exactly 1kg should use the fast estimate, got %d days", quote.DeliveryDays)
			}
		}
	}
}
