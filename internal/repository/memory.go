package repository

import (
	"context"
	"sync"
	"time"

	"github.com/cardpay/qrpay/internal/interfaces"
	"github.com/cardpay/qrpay/internal/models"
)

// MemoryLedger is an in-process implementation of the ledger contract with
// the same conditional-update semantics as the postgres store. It backs the
// test suites; everything mutates under one mutex, so each call is as atomic
// as a database commit.
type MemoryLedger struct {
	mu           sync.Mutex
	merchants    map[int64]models.Merchant
	cards        map[int64]models.Card
	transactions map[string]models.Transaction
	qrCodes      map[string]models.QRCode
	nextID       int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		merchants:    make(map[int64]models.Merchant),
		cards:        make(map[int64]models.Card),
		transactions: make(map[string]models.Transaction),
		qrCodes:      make(map[string]models.QRCode),
		nextID:       1,
	}
}

func (r *MemoryLedger) GetMerchant(_ context.Context, id int64) (*models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &m, nil
}

func (r *MemoryLedger) InsertMerchant(_ context.Context, m *models.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.nextID
		r.nextID++
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	r.merchants[m.ID] = *m
	return nil
}

func (r *MemoryLedger) GetCard(_ context.Context, id int64) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &c, nil
}

func (r *MemoryLedger) InsertCard(_ context.Context, c *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	if c.Status == "" {
		c.Status = "Active"
	}
	c.UpdatedAt = time.Now().UTC()
	r.cards[c.ID] = *c
	return nil
}

func (r *MemoryLedger) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &t, nil
}

func (r *MemoryLedger) GetQRCode(_ context.Context, id string) (*models.QRCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.qrCodes[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return cloneQRCode(q), nil
}

func (r *MemoryLedger) FindQRCodeByTransaction(_ context.Context, transactionID string) (*models.QRCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.qrCodes {
		if q.TransactionID != nil && *q.TransactionID == transactionID {
			return cloneQRCode(q), nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (r *MemoryLedger) InsertQRCode(_ context.Context, q *models.QRCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qrCodes[q.ID] = *cloneQRCode(*q)
	return nil
}

func (r *MemoryLedger) CreatePendingPayment(_ context.Context, txn *models.Transaction, qrCodeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.qrCodes[qrCodeID]
	if !ok || q.Status != models.QRActive {
		return false, nil
	}

	r.transactions[txn.ID] = *txn
	txnID := txn.ID
	cardID := txn.CardID
	q.Status = models.QRPending
	q.TransactionID = &txnID
	q.CardID = &cardID
	r.qrCodes[qrCodeID] = q
	return true, nil
}

func (r *MemoryLedger) SettleTransaction(_ context.Context, transactionID string, cardID, amount int64, completedAt time.Time) (interfaces.SettleOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transactions[transactionID]
	if !ok || t.Status != models.TxPending {
		return interfaces.SettleNotPending, nil
	}

	c, ok := r.cards[cardID]
	if !ok || c.Balance < amount {
		return interfaces.SettleInsufficientFunds, nil
	}

	c.Balance -= amount
	c.UpdatedAt = completedAt
	r.cards[cardID] = c

	t.Status = models.TxSuccess
	t.UpdatedAt = completedAt
	r.transactions[transactionID] = t

	for id, q := range r.qrCodes {
		if q.TransactionID != nil && *q.TransactionID == transactionID {
			q.Status = models.QRCompleted
			ts := completedAt
			q.CompletedAt = &ts
			r.qrCodes[id] = q
		}
	}
	return interfaces.SettleApplied, nil
}

func (r *MemoryLedger) FinalizeTransaction(_ context.Context, transactionID string, status models.TransactionStatus, qrStatus models.QRStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transactions[transactionID]
	if !ok || t.Status != models.TxPending {
		return false, nil
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	r.transactions[transactionID] = t

	for id, q := range r.qrCodes {
		if q.TransactionID != nil && *q.TransactionID == transactionID {
			q.Status = qrStatus
			r.qrCodes[id] = q
		}
	}
	return true, nil
}

func cloneQRCode(q models.QRCode) *models.QRCode {
	out := q
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		out.CompletedAt = &t
	}
	if q.TransactionID != nil {
		s := *q.TransactionID
		out.TransactionID = &s
	}
	if q.CardID != nil {
		id := *q.CardID
		out.CardID = &id
	}
	return &out
}
