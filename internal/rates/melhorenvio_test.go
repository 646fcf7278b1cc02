package rates

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRequest() Request {
	return Request{
		FromPostalCode: "01310100",
		ToPostalCode:   "04538132",
		Parcels:        []Parcel{{ID: "sku-1", WeightKg: 0.4, WidthCm: 20, HeightCm: 5, LengthCm: 16, Quantity: 2}},
	}
}

func TestMelhorEnvioRequiresToken(t *testing.T) {
	_, err := NewMelhorEnvio(MelhorEnvioConfig{BaseURL: "https://example.test"})
	if !errors.Is(err, ErrCredentials) {
		t.Fatalf("expected ErrCredentials for missing token, got %v", err)
	}
}

func TestMelhorEnvioQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/me/shipment/calculate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "Zark Test (test@zark.com)" {
			t.Errorf("user agent = %q", got)
		}

		var body struct {
			From     struct{ PostalCode string `json:"postal_code"` } `json:"from"`
			To       struct{ PostalCode string `json:"postal_code"` } `json:"to"`
			Services string                                           `json:"services"`
			Products []struct {
				ID       string  `json:"id"`
				Quantity int     `json:"quantity"`
				Weight   float64 `json:"weight"`
			} `json:"products"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.From.PostalCode != "01310100" || body.To.PostalCode != "04538132" {
			t.Errorf("postal codes = %s -> %s", body.From.PostalCode, body.To.PostalCode)
		}
		if body.Services != "1,2,3,4,17" {
			t.Errorf("services = %q", body.Services)
		}
		if len(body.Products) != 1 || body.Products[0].ID != "sku-1" || body.Products[0].Quantity != 2 {
			t.Errorf("unexpected products payload: %+v", body.Products)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"PAC","company":{"id":1,"name":"Correios","picture":"https://cdn.test/correios.png"},"final_price":21.40,"original_price":25.00,"delivery_time":5,"currency":"R$"},
			{"name":"SEDEX","company":{"id":1,"name":"Correios"},"error":"service unavailable for this route"},
			{"name":".Package","company":{"id":2,"name":"Jadlog"},"final_price":18.90,"original_price":18.90,"delivery_time":1,"currency":"R$"}
		]`))
	}))
	defer server.Close()

	provider, err := NewMelhorEnvio(MelhorEnvioConfig{
		Token:     "test-token",
		BaseURL:   server.URL,
		UserAgent: "Zark Test (test@zark.com)",
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	quotes, err := provider.Quote(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected error entries to be skipped, got %d quotes", len(quotes))
	}

	pac := quotes[0]
	if pac.Service != "PAC" || pac.Company != "Correios" || pac.CompanyID != 1 {
		t.Fatalf("unexpected first quote: %+v", pac)
	}
	if pac.PriceCents != 2140 || pac.OriginalPriceCents != 2500 {
		t.Fatalf("price mapping wrong: %d / %d", pac.PriceCents, pac.OriginalPriceCents)
	}
	if pac.DeliveryDays != 5 || pac.DeliveryMin != 3 || pac.DeliveryMax != 7 {
		t.Fatalf("delivery mapping wrong: %d [%d,%d]", pac.DeliveryDays, pac.DeliveryMin, pac.DeliveryMax)
	}
	if pac.LogoURL != "https://cdn.test/correios.png" {
		t.Fatalf("logo url = %q", pac.LogoURL)
	}

	jadlog := quotes[1]
	if jadlog.DeliveryMin != 1 {
		t.Fatalf("one-day delivery should clamp the range floor to 1, got %d", jadlog.DeliveryMin)
	}
	if jadlog.DeliveryMax != 3 {
		t.Fatalf("delivery max = %d, want 3", jadlog.DeliveryMax)
	}
}

func TestMelhorEnvioQuoteRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, err := NewMelhorEnvio(MelhorEnvioConfig{Token: "expired", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := provider.Quote(context.Background(), testRequest()); !errors.Is(err, ErrCredentials) {
		t.Fatalf("expected ErrCredentials, got %v", err)
	}
}

func TestMelhorEnvioQuoteUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider, err := NewMelhorEnvio(MelhorEnvioConfig{Token: "tok", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	_, err = provider.Quote(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error for status 500")
	}
	if errors.Is(err, ErrCredentials) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("unexpected sentinel for status 500: %v", err)
	}
}

func TestMelhorEnvioQuoteMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"not an array"}`))
	}))
	defer server.Close()

	provider, err := NewMelhorEnvio(MelhorEnvioConfig{Token: "tok", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := provider.Quote(context.Background(), testRequest()); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestMelhorEnvioQuoteTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	provider, err := NewMelhorEnvio(MelhorEnvioConfig{
		Token:      "tok",
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := provider.Quote(context.Background(), testRequest()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
