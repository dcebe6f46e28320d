package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cardpay/qrpay/internal/apperrors"
	"github.com/cardpay/qrpay/internal/events"
	"github.com/cardpay/qrpay/internal/interfaces"
	"github.com/cardpay/qrpay/internal/models"
	"github.com/cardpay/qrpay/internal/money"
	"github.com/cardpay/qrpay/internal/telemetry"
)

const settlementLockTTL = 30 * time.Second

// Settlement finalizes pending transactions: it commits the balance debit on
// success or drives the transaction to Failed/Cancelled, and keeps the bound
// QR code's status in lockstep. All terminal transitions go through the
// store's conditional updates, so re-processing an already-terminal
// transaction is rejected rather than applied twice.
type Settlement struct {
	store     interfaces.Ledger
	locker    Locker
	publisher events.Publisher
}

func NewSettlement(store interfaces.Ledger, locker Locker, publisher events.Publisher) *Settlement {
	return &Settlement{store: store, locker: locker, publisher: publisher}
}

// ConfirmOrCancel resolves a pending transaction per the cardholder's choice.
// Confirming with a PIN re-validates it against the transaction's card before
// settling; declining requires a cancellation reason.
func (s *Settlement) ConfirmOrCancel(ctx context.Context, transactionID string, confirm bool, pin, cancellationReason string) (*models.ConfirmationView, error) {
	unlock, err := s.lock(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.TxPending {
		return nil, apperrors.Validationf("Transaction is not in pending status. Current status: %s", txn.Status)
	}

	if confirm {
		if pin != "" {
			card, err := s.store.GetCard(ctx, txn.CardID)
			if errors.Is(err, interfaces.ErrNotFound) {
				return nil, apperrors.NotFound("Card not found")
			}
			if err != nil {
				return nil, apperrors.Unexpected("failed to load card", err)
			}
			if subtle.ConstantTimeCompare([]byte(card.PIN), []byte(pin)) != 1 {
				return nil, apperrors.Validation("Invalid PIN")
			}
		}
		return s.settle(ctx, txn)
	}

	if cancellationReason == "" {
		return nil, apperrors.Validation("Cancellation reason is required")
	}

	ok, err := s.store.FinalizeTransaction(ctx, txn.ID, models.TxCancelled, models.QRCancelled)
	if err != nil {
		return nil, apperrors.Unexpected("failed to cancel transaction", err)
	}
	if !ok {
		return nil, s.notPendingErr(ctx, txn.ID)
	}

	telemetry.SettlementsTotal.WithLabelValues("cancelled").Inc()
	telemetry.Logger.Info("Transaction cancelled",
		zap.String("transaction_id", txn.ID),
		zap.String("reason", cancellationReason),
	)
	s.publishTerminal(ctx, txn.ID, models.TxCancelled)

	return &models.ConfirmationView{
		TransactionID: txn.ID,
		Status:        string(models.TxCancelled),
		Message:       "Transaction cancelled successfully",
		Amount:        money.Format(txn.Amount),
		MerchantName:  s.merchantName(ctx, txn.MerchantID),
		ConfirmedAt:   time.Now().UTC(),
	}, nil
}

// Settle is the success path: debit the card and complete the bound QR code.
// If the balance no longer covers the amount the transaction is routed to the
// failure path instead of being left pending.
func (s *Settlement) Settle(ctx context.Context, transactionID string) (*models.ConfirmationView, error) {
	unlock, err := s.lock(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, txn)
}

func (s *Settlement) settle(ctx context.Context, txn *models.Transaction) (*models.ConfirmationView, error) {
	if _, err := s.store.GetCard(ctx, txn.CardID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, apperrors.NotFound("Card not found")
		}
		return nil, apperrors.Unexpected("failed to load card", err)
	}

	now := time.Now().UTC()
	outcome, err := s.store.SettleTransaction(ctx, txn.ID, txn.CardID, txn.Amount, now)
	if err != nil {
		return nil, apperrors.Unexpected("failed to settle transaction", err)
	}

	switch outcome {
	case interfaces.SettleInsufficientFunds:
		// Balance drifted since submission. Resolve to a terminal reported
		// state instead of surfacing an error.
		return s.fail(ctx, txn, "Insufficient balance")
	case interfaces.SettleNotPending:
		return nil, s.notPendingErr(ctx, txn.ID)
	}

	telemetry.SettlementsTotal.WithLabelValues("success").Inc()
	telemetry.Logger.Info("Transaction settled",
		zap.String("transaction_id", txn.ID),
		zap.Int64("card_id", txn.CardID),
		zap.Int64("amount", txn.Amount),
	)
	s.publishTerminal(ctx, txn.ID, models.TxSuccess)

	return &models.ConfirmationView{
		TransactionID: txn.ID,
		Status:        string(models.TxSuccess),
		Message:       "Payment completed successfully",
		Amount:        money.Format(txn.Amount),
		MerchantName:  s.merchantName(ctx, txn.MerchantID),
		ConfirmedAt:   now,
	}, nil
}

// Fail drives a pending transaction and its bound QR code to Failed.
func (s *Settlement) Fail(ctx context.Context, transactionID, reason string) (*models.ConfirmationView, error) {
	unlock, err := s.lock(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.fail(ctx, txn, reason)
}

func (s *Settlement) fail(ctx context.Context, txn *models.Transaction, reason string) (*models.ConfirmationView, error) {
	ok, err := s.store.FinalizeTransaction(ctx, txn.ID, models.TxFailed, models.QRFailed)
	if err != nil {
		return nil, apperrors.Unexpected("failed to mark transaction failed", err)
	}
	if !ok {
		return nil, s.notPendingErr(ctx, txn.ID)
	}

	telemetry.SettlementsTotal.WithLabelValues("failed").Inc()
	telemetry.Logger.Warn("Transaction failed",
		zap.String("transaction_id", txn.ID),
		zap.String("reason", reason),
	)
	s.publishTerminal(ctx, txn.ID, models.TxFailed)

	return &models.ConfirmationView{
		TransactionID: txn.ID,
		Status:        string(models.TxFailed),
		Message:       fmt.Sprintf("Payment failed: %s", reason),
		Amount:        money.Format(txn.Amount),
		MerchantName:  s.merchantName(ctx, txn.MerchantID),
		ConfirmedAt:   time.Now().UTC(),
		ErrorCode:     "PAYMENT_FAILED",
		ErrorMessage:  reason,
	}, nil
}

// GetTransaction returns a transaction with its merchant display name.
func (s *Settlement) GetTransaction(ctx context.Context, transactionID string) (*models.TransactionView, error) {
	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &models.TransactionView{
		TransactionID: txn.ID,
		CardID:        txn.CardID,
		MerchantID:    txn.MerchantID,
		MerchantName:  s.merchantName(ctx, txn.MerchantID),
		Amount:        money.Format(txn.Amount),
		Type:          txn.Type,
		Status:        txn.Status,
		Description:   txn.Description,
		CreatedAt:     txn.CreatedAt,
		UpdatedAt:     txn.UpdatedAt,
	}, nil
}

// notPendingErr reports the status a losing caller raced against.
func (s *Settlement) notPendingErr(ctx context.Context, transactionID string) error {
	status := "unknown"
	if txn, err := s.store.GetTransaction(ctx, transactionID); err == nil {
		status = string(txn.Status)
	}
	return apperrors.Validationf("Transaction is not in pending status. Current status: %s", status)
}

func (s *Settlement) loadTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperrors.NotFound("Transaction not found")
	}
	if err != nil {
		return nil, apperrors.Unexpected("failed to load transaction", err)
	}
	return txn, nil
}

func (s *Settlement) lock(ctx context.Context, transactionID string) (func(), error) {
	key := fmt.Sprintf("settlement_lock:%s", transactionID)
	ok, err := s.locker.Acquire(ctx, key, settlementLockTTL)
	if err != nil {
		return nil, apperrors.Unexpected("failed to acquire settlement lock", err)
	}
	if !ok {
		return nil, apperrors.Validation("Transaction is already being processed")
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			telemetry.Logger.Error("Error releasing settlement lock",
				zap.String("transaction_id", transactionID),
				zap.Error(err),
			)
		}
	}, nil
}

// merchantName resolves the display name, falling back to "Unknown" so a
// missing merchant row never blocks a settlement response.
func (s *Settlement) merchantName(ctx context.Context, merchantID int64) string {
	merchant, err := s.store.GetMerchant(ctx, merchantID)
	if err != nil {
		return "Unknown"
	}
	return merchant.Name
}

func (s *Settlement) publishTerminal(ctx context.Context, transactionID string, status models.TransactionStatus) {
	s.publisher.StateChanged(ctx, events.StateChange{
		Entity:        "transaction",
		EntityID:      transactionID,
		State:         string(status),
		PreviousState: string(models.TxPending),
	})
}
