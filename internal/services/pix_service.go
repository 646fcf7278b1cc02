package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/zark-commerce/api/internal/pix"
	"github.com/zark-commerce/api/internal/platform/observability"
)

// PixChargeService is the capability consumed by the HTTP layer.
type PixChargeService interface {
	CreateCharge(ctx context.Context, cmd CreateChargeCommand) (PixCharge, error)
}

// CreateChargeCommand carries the caller-supplied charge inputs.
type CreateChargeCommand struct {
	AmountCents  int64
	Description  string
	CustomerName string
}

// PixCharge is a one-shot payment request: the scannable QR image, the
// copy-paste payload and the expiry the UI counts down against.
type PixCharge struct {
	QRCodeDataURL string
	CopyPaste     string
	TransactionID string
	AmountCents   int64
	Description   string
	ExpiresAt     time.Time
}

// PixServiceDeps configures the payee identity and charge parameters.
type PixServiceDeps struct {
	Key          string
	MerchantName string
	MerchantCity string
	ChargeTTL    time.Duration
	QRSize       int
	Now          func() time.Time
	NewTxID      func() string
}

// PixService assembles charges from the static payee configuration and the
// pure payload encoder. It holds no mutable state.
type PixService struct {
	key          string
	merchantName string
	merchantCity string
	chargeTTL    time.Duration
	qrSize       int
	now          func() time.Time
	newTxID      func() string
}

// NewPixService validates the payee identity once at startup.
func NewPixService(deps PixServiceDeps) (*PixService, error) {
	if strings.TrimSpace(deps.Key) == "" {
		return nil, errors.New("pix service: payee key is required")
	}
	if strings.TrimSpace(deps.MerchantName) == "" || strings.TrimSpace(deps.MerchantCity) == "" {
		return nil, errors.New("pix service: merchant name and city are required")
	}
	ttl := deps.ChargeTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	size := deps.QRSize
	if size <= 0 {
		size = 300
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newTxID := deps.NewTxID
	if newTxID == nil {
		newTxID = pix.NewTransactionID
	}
	return &PixService{
		key:          strings.TrimSpace(deps.Key),
		merchantName: strings.TrimSpace(deps.MerchantName),
		merchantCity: strings.TrimSpace(deps.MerchantCity),
		chargeTTL:    ttl,
		qrSize:       size,
		now:          now,
		newTxID:      newTxID,
	}, nil
}

// CreateCharge encodes the payload, renders the QR image and stamps the expiry.
func (s *PixService) CreateCharge(ctx context.Context, cmd CreateChargeCommand) (PixCharge, error) {
	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		description = fmt.Sprintf("Compra - %s", strings.TrimSpace(cmd.CustomerName))
	}

	txID := s.newTxID()
	payload, err := pix.Payload{
		Key:           s.key,
		AmountCents:   cmd.AmountCents,
		MerchantName:  s.merchantName,
		MerchantCity:  s.merchantCity,
		TransactionID: txID,
	}.Encode()
	if err != nil {
		return PixCharge{}, err
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, s.qrSize)
	if err != nil {
		return PixCharge{}, fmt.Errorf("pix service: render qr code: %w", err)
	}

	now := s.now()
	observability.FromContext(ctx).Info("pix charge created",
		zap.String("transaction_id", txID),
		zap.Int64("amount_cents", cmd.AmountCents),
	)
	return PixCharge{
		QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		CopyPaste:     payload,
		TransactionID: txID,
		AmountCents:   cmd.AmountCents,
		Description:   description,
		ExpiresAt:     now.Add(s.chargeTTL),
	}, nil
}
