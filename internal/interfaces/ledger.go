package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/cardpay/qrpay/internal/models"
)

// ErrNotFound is returned by lookups when the entity does not exist.
// Services translate it into a domain NotFound error with a caller-facing
// message.
var ErrNotFound = errors.New("entity not found")

// SettleOutcome reports what the atomic settlement commit did.
type SettleOutcome int

const (
	// SettleApplied: the debit and both status updates committed.
	SettleApplied SettleOutcome = iota
	// SettleNotPending: the transaction was not in Pending state; nothing
	// changed.
	SettleNotPending
	// SettleInsufficientFunds: the conditional debit matched no row, the
	// whole commit rolled back and the transaction is still Pending.
	SettleInsufficientFunds
)

// Ledger defines the contract for the entity store. Status transitions are
// atomic conditional updates keyed on the expected prior status, so two
// concurrent callers racing on the same entity cannot both win. Multi-entity
// settlement writes commit as one unit.
type Ledger interface {
	GetMerchant(ctx context.Context, id int64) (*models.Merchant, error)
	InsertMerchant(ctx context.Context, m *models.Merchant) error

	GetCard(ctx context.Context, id int64) (*models.Card, error)
	InsertCard(ctx context.Context, c *models.Card) error

	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)

	GetQRCode(ctx context.Context, id string) (*models.QRCode, error)
	FindQRCodeByTransaction(ctx context.Context, transactionID string) (*models.QRCode, error)
	InsertQRCode(ctx context.Context, q *models.QRCode) error

	// CreatePendingPayment inserts the transaction and flips the QR code
	// Active -> Pending with the transaction/card binding, in one commit.
	// Returns false (and changes nothing) if the code was no longer Active.
	CreatePendingPayment(ctx context.Context, txn *models.Transaction, qrCodeID string) (bool, error)

	// SettleTransaction commits Pending -> Success, the conditional balance
	// debit and the bound QR code's Completed stamp as one unit.
	SettleTransaction(ctx context.Context, transactionID string, cardID, amount int64, completedAt time.Time) (SettleOutcome, error)

	// FinalizeTransaction commits Pending -> status plus the bound QR code's
	// matching status in one unit. Returns false if the transaction was not
	// Pending.
	FinalizeTransaction(ctx context.Context, transactionID string, status models.TransactionStatus, qrStatus models.QRStatus) (bool, error)
}
