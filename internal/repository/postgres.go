package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cardpay/qrpay/internal/interfaces"
	"github.com/cardpay/qrpay/internal/models"
)

type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (r *PostgresLedger) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS merchants (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(100) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id BIGSERIAL PRIMARY KEY,
			cardholder_id BIGINT NOT NULL,
			card_number VARCHAR(16) NOT NULL,
			expiry_date VARCHAR(5) NOT NULL,
			pin VARCHAR(4) NOT NULL,
			balance BIGINT NOT NULL CHECK (balance >= 0),
			status VARCHAR(20) NOT NULL DEFAULT 'Active',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(64) PRIMARY KEY,
			card_id BIGINT NOT NULL REFERENCES cards(id),
			merchant_id BIGINT NOT NULL REFERENCES merchants(id),
			amount BIGINT NOT NULL,
			transaction_type VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS qr_codes (
			id VARCHAR(50) PRIMARY KEY,
			merchant_id BIGINT NOT NULL REFERENCES merchants(id),
			amount BIGINT NOT NULL,
			description TEXT,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expiry_time TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			transaction_id VARCHAR(64) REFERENCES transactions(id),
			card_id BIGINT REFERENCES cards(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_qr_codes_transaction_id ON qr_codes(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_card_id ON transactions(card_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PostgresLedger) GetMerchant(ctx context.Context, id int64) (*models.Merchant, error) {
	var m models.Merchant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM merchants WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresLedger) InsertMerchant(ctx context.Context, m *models.Merchant) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO merchants (name, email)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, m.Name, m.Email).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (r *PostgresLedger) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	var c models.Card
	err := r.db.QueryRowContext(ctx, `
		SELECT id, cardholder_id, card_number, expiry_date, pin, balance, status, updated_at
		FROM cards WHERE id = $1
	`, id).Scan(&c.ID, &c.CardholderID, &c.Number, &c.Expiry, &c.PIN, &c.Balance, &c.Status, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresLedger) InsertCard(ctx context.Context, c *models.Card) error {
	if c.Status == "" {
		c.Status = "Active"
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO cards (cardholder_id, card_number, expiry_date, pin, balance, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, updated_at
	`, c.CardholderID, c.Number, c.Expiry, c.PIN, c.Balance, c.Status).Scan(&c.ID, &c.UpdatedAt)
}

func (r *PostgresLedger) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	var desc sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, card_id, merchant_id, amount, transaction_type, status, description, created_at, updated_at
		FROM transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.CardID, &t.MerchantID, &t.Amount, &t.Type, &t.Status, &desc, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Description = desc.String
	return &t, nil
}

func (r *PostgresLedger) GetQRCode(ctx context.Context, id string) (*models.QRCode, error) {
	return r.scanQRCode(r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, amount, description, status, created_at, expiry_time, completed_at, transaction_id, card_id
		FROM qr_codes WHERE id = $1
	`, id))
}

func (r *PostgresLedger) FindQRCodeByTransaction(ctx context.Context, transactionID string) (*models.QRCode, error) {
	return r.scanQRCode(r.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, amount, description, status, created_at, expiry_time, completed_at, transaction_id, card_id
		FROM qr_codes WHERE transaction_id = $1
	`, transactionID))
}

func (r *PostgresLedger) scanQRCode(row *sql.Row) (*models.QRCode, error) {
	var q models.QRCode
	var desc, txnID sql.NullString
	var completedAt sql.NullTime
	var cardID sql.NullInt64
	err := row.Scan(&q.ID, &q.MerchantID, &q.Amount, &desc, &q.Status,
		&q.CreatedAt, &q.ExpiryTime, &completedAt, &txnID, &cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	q.Description = desc.String
	if completedAt.Valid {
		t := completedAt.Time
		q.CompletedAt = &t
	}
	if txnID.Valid {
		s := txnID.String
		q.TransactionID = &s
	}
	if cardID.Valid {
		id := cardID.Int64
		q.CardID = &id
	}
	return &q, nil
}

func (r *PostgresLedger) InsertQRCode(ctx context.Context, q *models.QRCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qr_codes (id, merchant_id, amount, description, status, created_at, expiry_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, q.ID, q.MerchantID, q.Amount, nullString(q.Description), q.Status, q.CreatedAt, q.ExpiryTime)
	return err
}

// CreatePendingPayment inserts the pending transaction and claims the QR code
// in one database transaction. The claim is a conditional update keyed on the
// Active status, so of two concurrent submissions exactly one commits.
func (r *PostgresLedger) CreatePendingPayment(ctx context.Context, txn *models.Transaction, qrCodeID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, card_id, merchant_id, amount, transaction_type, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, txn.ID, txn.CardID, txn.MerchantID, txn.Amount, txn.Type, txn.Status,
		nullString(txn.Description), txn.CreatedAt, txn.UpdatedAt); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE qr_codes
		SET status = $1, transaction_id = $2, card_id = $3
		WHERE id = $4 AND status = $5
	`, models.QRPending, txn.ID, txn.CardID, qrCodeID, models.QRActive)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	return true, tx.Commit()
}

// SettleTransaction commits the status flip, the conditional balance debit and
// the QR code's Completed stamp as one unit. The debit matches only when the
// balance still covers the amount, which keeps check-then-debit atomic per
// card.
func (r *PostgresLedger) SettleTransaction(ctx context.Context, transactionID string, cardID, amount int64, completedAt time.Time) (interfaces.SettleOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return interfaces.SettleNotPending, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, models.TxSuccess, completedAt, transactionID, models.TxPending)
	if err != nil {
		return interfaces.SettleNotPending, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return interfaces.SettleNotPending, err
	}
	if rows == 0 {
		return interfaces.SettleNotPending, nil
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE cards SET balance = balance - $1, updated_at = $2
		WHERE id = $3 AND balance >= $1
	`, amount, completedAt, cardID)
	if err != nil {
		return interfaces.SettleNotPending, err
	}
	rows, err = result.RowsAffected()
	if err != nil {
		return interfaces.SettleNotPending, err
	}
	if rows == 0 {
		// Balance drifted since submission. Roll everything back and let the
		// caller route the transaction to the failure path.
		return interfaces.SettleInsufficientFunds, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE qr_codes SET status = $1, completed_at = $2
		WHERE transaction_id = $3
	`, models.QRCompleted, completedAt, transactionID); err != nil {
		return interfaces.SettleNotPending, err
	}

	return interfaces.SettleApplied, tx.Commit()
}

func (r *PostgresLedger) FinalizeTransaction(ctx context.Context, transactionID string, status models.TransactionStatus, qrStatus models.QRStatus) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, status, transactionID, models.TxPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE qr_codes SET status = $1 WHERE transaction_id = $2
	`, qrStatus, transactionID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
