package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zark-commerce/api/internal/pix"
	"github.com/zark-commerce/api/internal/platform/httpx"
	"github.com/zark-commerce/api/internal/platform/observability"
	"github.com/zark-commerce/api/internal/services"
)

const maxPixBodySize = 16 * 1024

// PixHandlers exposes charge generation for the checkout flow.
type PixHandlers struct {
	charges  services.PixChargeService
	validate *validator.Validate
}

// NewPixHandlers constructs handlers over the charge service.
func NewPixHandlers(charges services.PixChargeService) *PixHandlers {
	return &PixHandlers{
		charges:  charges,
		validate: validator.New(),
	}
}

// Routes wires the /pix endpoints onto the provided router.
func (h *PixHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/generate", h.generate)
}

type generatePixRequest struct {
	Amount      float64            `json:"amount" validate:"required,gt=0"`
	Description string             `json:"description"`
	Customer    pixCustomerPayload `json:"customer" validate:"required"`
}

type pixCustomerPayload struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type generatePixResponse struct {
	Success bool             `json:"success"`
	Pix     pixChargePayload `json:"pix"`
}

type pixChargePayload struct {
	QRCode      string  `json:"qrCode"`
	CopyPaste   string  `json:"copyPaste"`
	ExpiresAt   string  `json:"expiresAt"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

func (h *PixHandlers) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.charges == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pix_unavailable", "pix service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPixBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var req generatePixRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", validationMessage(err), http.StatusBadRequest))
		return
	}

	charge, err := h.charges.CreateCharge(ctx, services.CreateChargeCommand{
		AmountCents:  int64(math.Round(req.Amount * 100)),
		Description:  req.Description,
		CustomerName: req.Customer.Name,
	})
	if err != nil {
		h.writeChargeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, generatePixResponse{
		Success: true,
		Pix: pixChargePayload{
			QRCode:      charge.QRCodeDataURL,
			CopyPaste:   charge.CopyPaste,
			ExpiresAt:   charge.ExpiresAt.UTC().Format(time.RFC3339),
			Amount:      float64(charge.AmountCents) / 100,
			Description: charge.Description,
		},
	})
}

func (h *PixHandlers) writeChargeError(ctx context.Context, w http.ResponseWriter, err error) {
	var fieldErr *pix.FieldError
	switch {
	case errors.Is(err, pix.ErrNonPositiveAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_amount", "amount must be positive", http.StatusBadRequest))
	case errors.As(err, &fieldErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pix_field", fieldErr.Error(), http.StatusBadRequest))
	default:
		observability.FromContext(ctx).Error("pix charge generation failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("pix_generation_failed", "failed to generate pix charge", http.StatusInternalServerError))
	}
}
