package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zark-commerce/api/internal/domain"
	"github.com/zark-commerce/api/internal/rates"
	"github.com/zark-commerce/api/internal/services"
)

type stubQuoteService struct {
	result   services.QuoteResult
	err      error
	gotZip   string
	gotItems []domain.CartLineItem
}

func (s *stubQuoteService) CalculateRates(_ context.Context, zip string, items []domain.CartLineItem) (services.QuoteResult, error) {
	s.gotZip = zip
	s.gotItems = items
	if s.err != nil {
		return services.QuoteResult{}, s.err
	}
	return s.result, nil
}

func (s *stubQuoteService) ValidatePostalCode(code string) bool {
	return domain.ValidPostalCode(code)
}

func shippingRouter(h *ShippingHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/shipping", h.Routes)
	return r
}

const calculateBody = `{
	"cep": "04538-132",
	"products": [
		{"id": "sku-1", "price": 49.90, "quantity": 2, "weight": 0.4, "width": 20, "height": 5, "length": 18}
	]
}`

func postCalculate(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/shipping/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return payload
}

func TestCalculateShipping(t *testing.T) {
	stub := &stubQuoteService{result: services.QuoteResult{
		Options: []domain.RateOption{
			{
				ID:                 "correios-pac",
				Service:            "PAC",
				Company:            "Correios",
				CompanyID:          1,
				PriceCents:         2140,
				OriginalPriceCents: 2500,
				DeliveryDays:       5,
				DeliveryRange:      domain.DeliveryRange{Min: 3, Max: 7},
				IsCheapest:         true,
				Currency:           "R$",
			},
		},
		FromZip:  "01310100",
		ToZip:    "04538132",
		Estimate: false,
	}}
	handler := shippingRouter(NewShippingHandlers(stub, nil))

	rec := postCalculate(t, handler, calculateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	if stub.gotZip != "04538-132" {
		t.Fatalf("service received zip %q", stub.gotZip)
	}
	if len(stub.gotItems) != 1 {
		t.Fatalf("service received %d items", len(stub.gotItems))
	}
	if stub.gotItems[0].PriceCents != 4990 {
		t.Fatalf("price not converted to cents: %d", stub.gotItems[0].PriceCents)
	}
	if stub.gotItems[0].Quantity != 2 || stub.gotItems[0].WeightKg != 0.4 {
		t.Fatalf("item mapping wrong: %+v", stub.gotItems[0])
	}

	payload := decodeBody(t, rec)
	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	if payload["fromZip"] != "01310100" || payload["toZip"] != "04538132" {
		t.Fatalf("zips = %v -> %v", payload["fromZip"], payload["toZip"])
	}
	options, ok := payload["options"].([]any)
	if !ok || len(options) != 1 {
		t.Fatalf("options = %v", payload["options"])
	}
	option := options[0].(map[string]any)
	if option["id"] != "correios-pac" || option["name"] != "PAC" || option["company"] != "Correios" {
		t.Fatalf("option identity wrong: %v", option)
	}
	if option["price"] != float64(2140) || option["originalPrice"] != float64(2500) {
		t.Fatalf("option prices wrong: %v", option)
	}
	if option["isCheapest"] != true {
		t.Fatalf("cheapest flag missing: %v", option)
	}
	rangeObj := option["deliveryRange"].(map[string]any)
	if rangeObj["min"] != float64(3) || rangeObj["max"] != float64(7) {
		t.Fatalf("delivery range wrong: %v", rangeObj)
	}
}

func TestCalculateShippingRequestValidation(t *testing.T) {
	handler := shippingRouter(NewShippingHandlers(&stubQuoteService{}, nil))

	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{"},
		{name: "missing cep", body: `{"products":[{"id":"sku-1","quantity":1}]}`},
		{name: "no products", body: `{"cep":"04538-132","products":[]}`},
		{name: "zero quantity", body: `{"cep":"04538-132","products":[{"id":"sku-1","quantity":0}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postCalculate(t, handler, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if payload := decodeBody(t, rec); payload["error"] != "invalid_request" {
				t.Fatalf("error code = %v", payload["error"])
			}
		})
	}
}

func TestCalculateShippingErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid cep", err: services.ErrInvalidPostalCode, wantStatus: http.StatusBadRequest, wantCode: "invalid_postal_code"},
		{name: "empty cart", err: services.ErrEmptyCart, wantStatus: http.StatusBadRequest, wantCode: "empty_cart"},
		{name: "timeout", err: rates.ErrTimeout, wantStatus: http.StatusGatewayTimeout, wantCode: "shipping_provider_timeout"},
		{name: "credentials", err: rates.ErrCredentials, wantStatus: http.StatusInternalServerError, wantCode: "shipping_provider_misconfigured"},
		{name: "malformed upstream", err: rates.ErrMalformedResponse, wantStatus: http.StatusBadGateway, wantCode: "shipping_provider_error"},
		{name: "unknown", err: context.Canceled, wantStatus: http.StatusInternalServerError, wantCode: "shipping_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := shippingRouter(NewShippingHandlers(&stubQuoteService{err: tc.err}, nil))
			rec := postCalculate(t, handler, calculateBody)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if payload := decodeBody(t, rec); payload["error"] != tc.wantCode {
				t.Fatalf("error code = %v, want %s", payload["error"], tc.wantCode)
			}
		})
	}
}

func TestCalculateShippingLineItemError(t *testing.T) {
	stub := &stubQuoteService{err: &services.LineItemError{ProductID: "sku-1"}}
	handler := shippingRouter(NewShippingHandlers(stub, nil))

	rec := postCalculate(t, handler, calculateBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "missing_product_attributes" {
		t.Fatalf("error code = %v", payload["error"])
	}
	if payload["productId"] != "sku-1" {
		t.Fatalf("expected offending product id in response, got %v", payload)
	}
}

func TestCalculateShippingRateLimited(t *testing.T) {
	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := newFixedWindowLimiter(2, time.Minute, func() time.Time { return current })
	stub := &stubQuoteService{result: services.QuoteResult{FromZip: "01310100", ToZip: "04538132"}}
	handler := shippingRouter(NewShippingHandlers(stub, limiter))

	for i := 0; i < 2; i++ {
		if rec := postCalculate(t, handler, calculateBody); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	rec := postCalculate(t, handler, calculateBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}
	if payload := decodeBody(t, rec); payload["error"] != "rate_limited" {
		t.Fatalf("error code = %v", payload["error"])
	}
}

func TestValidateZipCodeEndpoint(t *testing.T) {
	handler := shippingRouter(NewShippingHandlers(&stubQuoteService{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/shipping/calculate?zipCode=01310-100", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["valid"] != true || payload["zipCode"] != "01310100" {
		t.Fatalf("payload = %v", payload)
	}

	req = httptest.NewRequest(http.MethodGet, "/shipping/calculate?zipCode=00000000", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if payload := decodeBody(t, rec); payload["valid"] != false {
		t.Fatalf("repeated-digit CEP reported valid: %v", payload)
	}

	req = httptest.NewRequest(http.MethodGet, "/shipping/calculate", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing zipCode status = %d", rec.Code)
	}
}
