package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cardpay/qrpay/internal/apperrors"
	"github.com/cardpay/qrpay/internal/events"
	"github.com/cardpay/qrpay/internal/interfaces"
	"github.com/cardpay/qrpay/internal/models"
	"github.com/cardpay/qrpay/internal/money"
	"github.com/cardpay/qrpay/internal/telemetry"
)

const (
	minExpiryMinutes = 1
	maxExpiryMinutes = 1440
)

// Issuer creates time-bounded QR payment requests for merchants.
type Issuer struct {
	store     interfaces.Ledger
	ids       IDGenerator
	publisher events.Publisher
}

func NewIssuer(store interfaces.Ledger, ids IDGenerator, publisher events.Publisher) *Issuer {
	return &Issuer{store: store, ids: ids, publisher: publisher}
}

type GenerateRequest struct {
	MerchantID    int64
	Amount        int64 // minor units
	Description   string
	ExpiryMinutes int
}

// Generate persists a new Active QR code and returns its view together with
// the encoded scan payload. The single insert is the only side effect.
func (s *Issuer) Generate(ctx context.Context, req GenerateRequest) (*models.QRCodeView, error) {
	if req.Amount <= 0 {
		return nil, apperrors.Validation("Amount must be greater than zero")
	}
	if req.ExpiryMinutes < minExpiryMinutes || req.ExpiryMinutes > maxExpiryMinutes {
		return nil, apperrors.Validationf("Expiry must be between %d and %d minutes", minExpiryMinutes, maxExpiryMinutes)
	}

	merchant, err := s.store.GetMerchant(ctx, req.MerchantID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperrors.NotFound("Merchant not found")
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load merchant", err)
	}

	now := time.Now().UTC()
	qr := &models.QRCode{
		ID:          s.ids.QRCodeID(),
		MerchantID:  req.MerchantID,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      models.QRActive,
		CreatedAt:   now,
		ExpiryTime:  now.Add(time.Duration(req.ExpiryMinutes) * time.Minute),
	}

	if err := s.store.InsertQRCode(ctx, qr); err != nil {
		return nil, apperrors.Unexpected("failed to persist QR code", err)
	}

	payload, err := s.EncodePayload(qr)
	if err != nil {
		return nil, apperrors.Unexpected("failed to encode QR payload", err)
	}

	telemetry.QRCodesGenerated.Inc()
	telemetry.Logger.Info("QR code generated",
		zap.String("qr_code_id", qr.ID),
		zap.Int64("merchant_id", qr.MerchantID),
		zap.Int64("amount", qr.Amount),
	)
	s.publisher.StateChanged(ctx, events.StateChange{
		Entity:   "qr_code",
		EntityID: qr.ID,
		State:    string(models.QRActive),
	})

	return &models.QRCodeView{
		QRCodeID:     qr.ID,
		MerchantID:   qr.MerchantID,
		MerchantName: merchant.Name,
		Amount:       money.Format(qr.Amount),
		Description:  qr.Description,
		Status:       qr.Status,
		CreatedAt:    qr.CreatedAt,
		ExpiryTime:   qr.ExpiryTime,
		QRCodeData:   payload,
	}, nil
}

type qrPayload struct {
	QRCodeID        string    `json:"qr_code_id"`
	MerchantID      int64     `json:"merchant_id"`
	Amount          string    `json:"amount"`
	Description     string    `json:"description,omitempty"`
	ExpiryTime      time.Time `json:"expiry_time"`
	ReferenceNumber string    `json:"reference_number"`
}

// EncodePayload serializes the bundle an external renderer turns into a
// scannable image. It has no side effects and can be recomputed at will; only
// the reference number differs between calls.
func (s *Issuer) EncodePayload(qr *models.QRCode) (string, error) {
	data, err := json.Marshal(qrPayload{
		QRCodeID:        qr.ID,
		MerchantID:      qr.MerchantID,
		Amount:          money.Format(qr.Amount),
		Description:     qr.Description,
		ExpiryTime:      qr.ExpiryTime,
		ReferenceNumber: s.ids.ReferenceNumber(),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
