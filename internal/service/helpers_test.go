package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cardpay/qrpay/internal/events"
	"github.com/cardpay/qrpay/internal/models"
	"github.com/cardpay/qrpay/internal/repository"
)

// capturePublisher records state changes for assertions.
type capturePublisher struct {
	mu      sync.Mutex
	changes []events.StateChange
}

func (p *capturePublisher) StateChanged(_ context.Context, change events.StateChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
}

func (p *capturePublisher) recorded() []events.StateChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.StateChange, len(p.changes))
	copy(out, p.changes)
	return out
}

// deniedLocker simulates a lock already held elsewhere.
type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return false, nil }
func (deniedLocker) Release(context.Context, string) error                        { return nil }

type testEnv struct {
	store      *repository.MemoryLedger
	publisher  *capturePublisher
	issuer     *Issuer
	processor  *Processor
	settlement *Settlement
	merchant   models.Merchant
	card       models.Card
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryLedger()
	publisher := &capturePublisher{}

	merchant := models.Merchant{Name: "Coffee Corner", Email: "owner@coffeecorner.test"}
	require.NoError(t, store.InsertMerchant(ctx, &merchant))

	card := models.Card{
		CardholderID: 1,
		Number:       "4111111111111111",
		Expiry:       "12/28",
		PIN:          "1234",
		Balance:      10000, // 100.00
	}
	require.NoError(t, store.InsertCard(ctx, &card))

	return &testEnv{
		store:      store,
		publisher:  publisher,
		issuer:     NewIssuer(store, NewIDGenerator(), publisher),
		processor:  NewProcessor(store, publisher),
		settlement: NewSettlement(store, NewLocalLocker(), publisher),
		merchant:   merchant,
		card:       card,
	}
}

// generate issues a QR code for the env merchant and returns its id.
func (e *testEnv) generate(t *testing.T, amount int64, expiryMinutes int) string {
	t.Helper()
	view, err := e.issuer.Generate(context.Background(), GenerateRequest{
		MerchantID:    e.merchant.ID,
		Amount:        amount,
		Description:   "flat white",
		ExpiryMinutes: expiryMinutes,
	})
	require.NoError(t, err)
	return view.QRCodeID
}

// submit opens a pending transaction against the env card.
func (e *testEnv) submit(t *testing.T, qrCodeID string) string {
	t.Helper()
	view, err := e.processor.Submit(context.Background(), qrCodeID, e.card.ID, "1234")
	require.NoError(t, err)
	return view.TransactionID
}
