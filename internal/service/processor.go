package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardpay/qrpay/internal/apperrors"
	"github.com/cardpay/qrpay/internal/events"
	"github.com/cardpay/qrpay/internal/interfaces"
	"github.com/cardpay/qrpay/internal/models"
	"github.com/cardpay/qrpay/internal/money"
	"github.com/cardpay/qrpay/internal/telemetry"
)

// Processor validates a scanned QR request against a presented card and opens
// the pending transaction. Funds are only reserved conceptually here; nothing
// is debited until settlement.
type Processor struct {
	store     interfaces.Ledger
	publisher events.Publisher
}

func NewProcessor(store interfaces.Ledger, publisher events.Publisher) *Processor {
	return &Processor{store: store, publisher: publisher}
}

// Submit drives the QR code Active -> Pending. The claim is a conditional
// update in the store, so of two concurrent submissions on the same code
// exactly one succeeds.
func (p *Processor) Submit(ctx context.Context, qrCodeID string, cardID int64, pin string) (*models.PendingPaymentView, error) {
	qr, err := p.store.GetQRCode(ctx, qrCodeID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperrors.NotFound("QR code not found")
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load QR code", err)
	}

	if qr.Status != models.QRActive {
		return nil, apperrors.Validationf("QR code is not active. Current status: %s", qr.Status)
	}
	// Expiry is checked lazily: a stale Active code past its window is
	// rejected here even though storage still says Active.
	if qr.Expired(time.Now().UTC()) {
		return nil, apperrors.Validation("QR code has expired")
	}

	card, err := p.store.GetCard(ctx, cardID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperrors.NotFound("Card not found")
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load card", err)
	}

	if subtle.ConstantTimeCompare([]byte(card.PIN), []byte(pin)) != 1 {
		return nil, apperrors.Validation("Invalid PIN")
	}

	if card.Balance < qr.Amount {
		return nil, apperrors.InsufficientBalance("Insufficient balance")
	}

	// A missing merchant here means the QR code references a deleted row,
	// which is data corruption rather than user error.
	merchant, err := p.store.GetMerchant(ctx, qr.MerchantID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperrors.NotFound("Merchant not found")
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load merchant", err)
	}

	now := time.Now().UTC()
	txn := &models.Transaction{
		ID:          uuid.NewString(),
		CardID:      cardID,
		MerchantID:  qr.MerchantID,
		Amount:      qr.Amount,
		Type:        models.TransactionTypeQRPayment,
		Status:      models.TxPending,
		Description: qr.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	claimed, err := p.store.CreatePendingPayment(ctx, txn, qrCodeID)
	if err != nil {
		return nil, apperrors.Unexpected("failed to create pending payment", err)
	}
	if !claimed {
		// Lost the race: someone else moved the code off Active between our
		// read and the conditional update.
		return nil, apperrors.Validationf("QR code is not active. Current status: %s", models.QRPending)
	}

	telemetry.PaymentsSubmitted.Inc()
	telemetry.Logger.Info("Payment submitted",
		zap.String("qr_code_id", qrCodeID),
		zap.String("transaction_id", txn.ID),
		zap.Int64("card_id", cardID),
		zap.Int64("amount", txn.Amount),
	)
	p.publisher.StateChanged(ctx, events.StateChange{
		Entity:        "qr_code",
		EntityID:      qrCodeID,
		State:         string(models.QRPending),
		PreviousState: string(models.QRActive),
	})
	p.publisher.StateChanged(ctx, events.StateChange{
		Entity:   "transaction",
		EntityID: txn.ID,
		State:    string(models.TxPending),
	})

	return &models.PendingPaymentView{
		TransactionID: txn.ID,
		Status:        string(models.TxPending),
		Message:       "Payment initiated successfully. Please confirm the transaction.",
		Amount:        money.Format(txn.Amount),
		MerchantName:  merchant.Name,
		ProcessedAt:   now,
	}, nil
}

// QRStatus returns the stored state of a QR code with its bound transaction,
// if any. It never mutates: an expired-but-unused code still reads Active.
func (p *Processor) QRStatus(ctx context.Context, qrCodeID string) (*models.QRStatusView, error) {
	qr, err := p.store.GetQRCode(ctx, qrCodeID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperrors.NotFound("QR code not found")
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load QR code", err)
	}

	view := &models.QRStatusView{
		QRCodeID:    qr.ID,
		Status:      qr.Status,
		Amount:      money.Format(qr.Amount),
		Description: qr.Description,
		CreatedAt:   qr.CreatedAt,
		ExpiryTime:  qr.ExpiryTime,
		CompletedAt: qr.CompletedAt,
	}

	if qr.TransactionID == nil {
		return view, nil
	}

	txn, err := p.store.GetTransaction(ctx, *qr.TransactionID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load transaction", err)
	}

	merchantName := "Unknown"
	if merchant, err := p.store.GetMerchant(ctx, qr.MerchantID); err == nil {
		merchantName = merchant.Name
	}

	view.Transaction = &models.TransactionView{
		TransactionID: txn.ID,
		CardID:        txn.CardID,
		MerchantID:    txn.MerchantID,
		MerchantName:  merchantName,
		Amount:        money.Format(txn.Amount),
		Type:          txn.Type,
		Status:        txn.Status,
		Description:   txn.Description,
		CreatedAt:     txn.CreatedAt,
		UpdatedAt:     txn.UpdatedAt,
	}
	return view, nil
}
