package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zark-commerce/api/internal/domain"
	"github.com/zark-commerce/api/internal/platform/httpx"
	"github.com/zark-commerce/api/internal/platform/observability"
	"github.com/zark-commerce/api/internal/rates"
	"github.com/zark-commerce/api/internal/services"
)

const maxShippingBodySize = 64 * 1024

// ShippingHandlers exposes the quote calculation and CEP validation endpoints.
type ShippingHandlers struct {
	quotes   services.RateQuoteService
	limiter  *FixedWindowLimiter
	validate *validator.Validate
}

// NewShippingHandlers wires the quote service and the per-IP request limiter.
// A nil limiter disables throttling, which tests rely on.
func NewShippingHandlers(quotes services.RateQuoteService, limiter *FixedWindowLimiter) *ShippingHandlers {
	return &ShippingHandlers{
		quotes:   quotes,
		limiter:  limiter,
		validate: validator.New(),
	}
}

// Routes wires the /shipping endpoints onto the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/calculate", h.calculate)
	r.Get("/calculate", h.validateZipCode)
}

type calculateShippingRequest struct {
	CEP      string                   `json:"cep" validate:"required"`
	Products []shippingProductPayload `json:"products" validate:"required,min=1,dive"`
}

type shippingProductPayload struct {
	ID       string  `json:"id" validate:"required"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	Weight   float64 `json:"weight"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Length   float64 `json:"length"`
}

type calculateShippingResponse struct {
	Success  bool                `json:"success"`
	Options  []rateOptionPayload `json:"options"`
	FromZip  string              `json:"fromZip"`
	ToZip    string              `json:"toZip"`
	Estimate bool                `json:"estimate"`
}

type rateOptionPayload struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Company       string               `json:"company"`
	CompanyID     int                  `json:"companyId"`
	Price         int64                `json:"price"`
	OriginalPrice int64                `json:"originalPrice"`
	DeliveryTime  int                  `json:"deliveryTime"`
	DeliveryRange deliveryRangePayload `json:"deliveryRange"`
	IsCheapest    bool                 `json:"isCheapest"`
	Logo          string               `json:"logo"`
	Currency      string               `json:"currency"`
}

type deliveryRangePayload struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (h *ShippingHandlers) calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil {
		if allowed, retryAfter := h.limiter.Allow(clientKey(r)); !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many shipping requests; wait a moment and try again", http.StatusTooManyRequests))
			return
		}
	}

	body, err := readLimitedBody(r, maxShippingBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var req calculateShippingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", validationMessage(err), http.StatusBadRequest))
		return
	}

	items := make([]domain.CartLineItem, 0, len(req.Products))
	for _, product := range req.Products {
		items = append(items, domain.CartLineItem{
			ID:         product.ID,
			PriceCents: int64(math.Round(product.Price * 100)),
			Quantity:   product.Quantity,
			WeightKg:   product.Weight,
			WidthCm:    product.Width,
			HeightCm:   product.Height,
			LengthCm:   product.Length,
		})
	}

	result, err := h.quotes.CalculateRates(ctx, req.CEP, items)
	if err != nil {
		h.writeQuoteError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCalculateResponse(result))
}

func buildCalculateResponse(result services.QuoteResult) calculateShippingResponse {
	options := make([]rateOptionPayload, 0, len(result.Options))
	for _, option := range result.Options {
		options = append(options, rateOptionPayload{
			ID:            option.ID,
			Name:          option.Service,
			Company:       option.Company,
			CompanyID:     option.CompanyID,
			Price:         option.PriceCents,
			OriginalPrice: option.OriginalPriceCents,
			DeliveryTime:  option.DeliveryDays,
			DeliveryRange: deliveryRangePayload{Min: option.DeliveryRange.Min, Max: option.DeliveryRange.Max},
			IsCheapest:    option.IsCheapest,
			Logo:          option.LogoURL,
			Currency:      option.Currency,
		})
	}
	return calculateShippingResponse{
		Success:  true,
		Options:  options,
		FromZip:  result.FromZip,
		ToZip:    result.ToZip,
		Estimate: result.Estimate,
	}
}

func (h *ShippingHandlers) writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	var lineItemErr *services.LineItemError
	switch {
	case errors.Is(err, services.ErrInvalidPostalCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_postal_code", "destination postal code must be a valid 8-digit CEP", http.StatusBadRequest))
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "at least one cart item is required", http.StatusBadRequest))
	case errors.As(err, &lineItemErr):
		httpx.WriteError(ctx, w, httpx.NewError("missing_product_attributes", lineItemErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"productId": lineItemErr.ProductID}))
	case errors.Is(err, rates.ErrTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_provider_timeout", "shipping quote timed out; try again", http.StatusGatewayTimeout))
	case errors.Is(err, rates.ErrCredentials):
		observability.FromContext(ctx).Error("shipping provider credentials rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("shipping_provider_misconfigured", "shipping provider is misconfigured", http.StatusInternalServerError))
	case errors.Is(err, rates.ErrMalformedResponse):
		observability.FromContext(ctx).Error("shipping provider returned malformed response", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("shipping_provider_error", "shipping provider returned an invalid response", http.StatusBadGateway))
	default:
		observability.FromContext(ctx).Error("shipping quote failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to calculate shipping", http.StatusInternalServerError))
	}
}

func (h *ShippingHandlers) validateZipCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	zipCode := strings.TrimSpace(r.URL.Query().Get("zipCode"))
	if zipCode == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "zipCode query parameter is required", http.StatusBadRequest))
		return
	}

	valid := domain.ValidPostalCode(zipCode)
	if h.quotes != nil {
		valid = h.quotes.ValidatePostalCode(zipCode)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"valid":   valid,
		"zipCode": domain.NormalizePostalCode(zipCode),
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "request failed validation"
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fe.Namespace()+" is required")
		case "min":
			messages = append(messages, fe.Namespace()+" must not be empty")
		case "gt":
			messages = append(messages, fe.Namespace()+" must be greater than "+fe.Param())
		default:
			messages = append(messages, fe.Namespace()+" is invalid")
		}
	}
	return strings.Join(messages, "; ")
}
