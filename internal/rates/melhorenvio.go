package rates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zark-commerce/api/internal/platform/observability"
)

const (
	calculatePath = "/me/shipment/calculate"
	// Carrier service ids requested from Melhor Envio: Correios PAC/SEDEX
	// and Jadlog services.
	requestedServices = "1,2,3,4,17"
	platformTag       = "zark-ecommerce"

	defaultRequestTimeout = 30 * time.Second
	maxErrorBodyBytes     = 1024
)

// MelhorEnvioConfig configures the live provider client.
type MelhorEnvioConfig struct {
	Token      string
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// MelhorEnvioProvider calls the Melhor Envio shipment-calculate API.
type MelhorEnvioProvider struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
}

// NewMelhorEnvio constructs the live provider. The token is mandatory; callers
// without one should select the estimate provider instead.
func NewMelhorEnvio(cfg MelhorEnvioConfig) (*MelhorEnvioProvider, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing api token", ErrCredentials)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("rates: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &MelhorEnvioProvider{
		baseURL:   baseURL,
		token:     token,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		http:      httpClient,
	}, nil
}

// Name implements the Provider interface.
func (p *MelhorEnvioProvider) Name() string { return ProviderMelhorEnvio }

type calculateRequest struct {
	From     postalCodeRef      `json:"from"`
	To       postalCodeRef      `json:"to"`
	Products []calculateProduct `json:"products"`
	Services string             `json:"services"`
	Options  calculateOptions   `json:"options"`
}

type postalCodeRef struct {
	PostalCode string `json:"postal_code"`
}

type calculateProduct struct {
	ID       string  `json:"id"`
	Weight   float64 `json:"weight"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Length   float64 `json:"length"`
	Quantity int     `json:"quantity"`
}

type calculateOptions struct {
	InsuranceValue float64 `json:"insurance_value"`
	Receipt        bool    `json:"receipt"`
	OwnHand        bool    `json:"own_hand"`
	Reverse        bool    `json:"reverse"`
	NonCommercial  bool    `json:"non_commercial"`
	Platform       string  `json:"platform"`
}

type calculateResult struct {
	Name    string `json:"name"`
	Company struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	} `json:"company"`
	FinalPrice    float64 `json:"final_price"`
	OriginalPrice float64 `json:"original_price"`
	DeliveryTime  int     `json:"delivery_time"`
	Currency      string  `json:"currency"`
	Error         string  `json:"error"`
}

// Quote implements the Provider interface against the live API.
func (p *MelhorEnvioProvider) Quote(ctx context.Context, req Request) ([]Quote, error) {
	payload := calculateRequest{
		From:     postalCodeRef{PostalCode: req.FromPostalCode},
		To:       postalCodeRef{PostalCode: req.ToPostalCode},
		Products: make([]calculateProduct, 0, len(req.Parcels)),
		Services: requestedServices,
		Options:  calculateOptions{Platform: platformTag},
	}
	for _, parcel := range req.Parcels {
		payload.Products = append(payload.Products, calculateProduct{
			ID:       parcel.ID,
			Weight:   parcel.WeightKg,
			Width:    parcel.WidthCm,
			Height:   parcel.HeightCm,
			Length:   parcel.LengthCm,
			Quantity: parcel.Quantity,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rates: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+calculatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rates: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.token)
	if p.userAgent != "" {
		httpReq.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("rates: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrCredentials, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		observability.FromContext(ctx).Error("melhor envio returned unexpected status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return nil, fmt.Errorf("rates: calculate endpoint returned status %d", resp.StatusCode)
	}

	var results []calculateResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	quotes := make([]Quote, 0, len(results))
	for _, result := range results {
		// Services unavailable for the parcel set come back as entries
		// carrying only an error string.
		if result.Error != "" {
			continue
		}
		days := result.DeliveryTime
		quotes = append(quotes, Quote{
			Service:            result.Name,
			Company:            result.Company.Name,
			CompanyID:          result.Company.ID,
			PriceCents:         toCents(result.FinalPrice),
			OriginalPriceCents: toCents(result.OriginalPrice),
			DeliveryDays:       days,
			DeliveryMin:        maxInt(days-2, 1),
			DeliveryMax:        days + 2,
			LogoURL:            result.Company.Picture,
			Currency:           result.Currency,
		})
	}
	return quotes, nil
}

func toCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
