package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cardpay/qrpay/internal/api"
	"github.com/cardpay/qrpay/internal/events"
	"github.com/cardpay/qrpay/internal/models"
	"github.com/cardpay/qrpay/internal/repository"
	"github.com/cardpay/qrpay/internal/service"
)

type fixture struct {
	router   *gin.Engine
	store    *repository.MemoryLedger
	merchant models.Merchant
	card     models.Card
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryLedger()

	merchant := models.Merchant{Name: "Corner Bakery", Email: "till@cornerbakery.test"}
	require.NoError(t, store.InsertMerchant(ctx, &merchant))

	card := models.Card{
		CardholderID: 1,
		Number:       "4111111111111111",
		Expiry:       "09/27",
		PIN:          "4321",
		Balance:      10000, // 100.00
	}
	require.NoError(t, store.InsertCard(ctx, &card))

	publisher := events.NopPublisher{}
	issuer := service.NewIssuer(store, service.NewIDGenerator(), publisher)
	processor := service.NewProcessor(store, publisher)
	settlement := service.NewSettlement(store, service.NewLocalLocker(), publisher)

	return &fixture{
		router:   api.NewRouter(issuer, processor, settlement),
		store:    store,
		merchant: merchant,
		card:     card,
	}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

func (f *fixture) generateQR(t *testing.T, amount string, expiryMinutes int) models.QRCodeView {
	t.Helper()
	w := f.do("POST", "/api/qr/generate", gin.H{
		"merchant_id":    f.merchant.ID,
		"amount":         amount,
		"description":    "sourdough loaf",
		"expiry_minutes": expiryMinutes,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view models.QRCodeView
	decode(t, w, &view)
	return view
}

func TestQRPaymentEndToEnd(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	qr := f.generateQR(t, "50.00", 30)
	require.Equal(t, models.QRActive, qr.Status)
	require.NotEmpty(t, qr.QRCodeData)

	// Submit with the cardholder's card and PIN.
	w := f.do("POST", "/api/qr/pay", gin.H{
		"qr_code_id": qr.QRCodeID,
		"card_id":    f.card.ID,
		"pin":        "4321",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pending models.PendingPaymentView
	decode(t, w, &pending)
	require.Equal(t, "Pending", pending.Status)
	require.Equal(t, "50.00", pending.Amount)

	// QR code reflects the binding.
	w = f.do("GET", "/api/qr/status/"+qr.QRCodeID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.QRStatusView
	decode(t, w, &status)
	require.Equal(t, models.QRPending, status.Status)
	require.NotNil(t, status.Transaction)
	require.Equal(t, pending.TransactionID, status.Transaction.TransactionID)

	// Confirm with PIN; card is debited and everything goes terminal.
	w = f.do("POST", "/api/transactions/confirm", gin.H{
		"transaction_id": pending.TransactionID,
		"confirm":        true,
		"pin":            "4321",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmation models.ConfirmationView
	decode(t, w, &confirmation)
	require.Equal(t, "Success", confirmation.Status)

	card, err := f.store.GetCard(ctx, f.card.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5000), card.Balance)

	w = f.do("GET", "/api/qr/status/"+qr.QRCodeID, nil)
	decode(t, w, &status)
	require.Equal(t, models.QRCompleted, status.Status)
	require.NotNil(t, status.CompletedAt)
	require.Equal(t, models.TxSuccess, status.Transaction.Status)
}

func TestQRPaymentInsufficientBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	qr := f.generateQR(t, "150.00", 30) // card only holds 100.00

	w := f.do("POST", "/api/qr/pay", gin.H{
		"qr_code_id": qr.QRCodeID,
		"card_id":    f.card.ID,
		"pin":        "4321",
	})
	require.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())
	env := decode(t, w, nil)
	require.False(t, env.Success)
	require.Equal(t, "Insufficient balance", env.Message)

	// QR code stays claimable, nothing was created.
	stored, err := f.store.GetQRCode(ctx, qr.QRCodeID)
	require.NoError(t, err)
	require.Equal(t, models.QRActive, stored.Status)
	require.Nil(t, stored.TransactionID)
}

func TestCancelFlow(t *testing.T) {
	f := setup(t)

	qr := f.generateQR(t, "25.00", 30)
	w := f.do("POST", "/api/qr/pay", gin.H{
		"qr_code_id": qr.QRCodeID,
		"card_id":    f.card.ID,
		"pin":        "4321",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var pending models.PendingPaymentView
	decode(t, w, &pending)

	// Declining without a reason is rejected.
	w = f.do("POST", "/api/transactions/confirm", gin.H{
		"transaction_id": pending.TransactionID,
		"confirm":        false,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/api/transactions/confirm", gin.H{
		"transaction_id":      pending.TransactionID,
		"confirm":             false,
		"cancellation_reason": "ordered by mistake",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmation models.ConfirmationView
	decode(t, w, &confirmation)
	require.Equal(t, "Cancelled", confirmation.Status)

	var status models.QRStatusView
	w = f.do("GET", "/api/qr/status/"+qr.QRCodeID, nil)
	decode(t, w, &status)
	require.Equal(t, models.QRCancelled, status.Status)
}

func TestSettleAndFailEndpoints(t *testing.T) {
	f := setup(t)

	qr := f.generateQR(t, "10.00", 30)
	w := f.do("POST", "/api/qr/pay", gin.H{
		"qr_code_id": qr.QRCodeID,
		"card_id":    f.card.ID,
		"pin":        "4321",
	})
	var pending models.PendingPaymentView
	decode(t, w, &pending)

	w = f.do("POST", "/api/transactions/"+pending.TransactionID+"/settle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Re-settling a terminal transaction is a validation error.
	w = f.do("POST", "/api/transactions/"+pending.TransactionID+"/settle", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Fail endpoint on a fresh pending transaction.
	qr2 := f.generateQR(t, "10.00", 30)
	w = f.do("POST", "/api/qr/pay", gin.H{
		"qr_code_id": qr2.QRCodeID,
		"card_id":    f.card.ID,
		"pin":        "4321",
	})
	decode(t, w, &pending)

	w = f.do("POST", "/api/transactions/"+pending.TransactionID+"/fail", gin.H{"reason": "network timeout"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmation models.ConfirmationView
	decode(t, w, &confirmation)
	require.Equal(t, "Failed", confirmation.Status)
	require.Equal(t, "network timeout", confirmation.ErrorMessage)
}

func TestErrorStatusMapping(t *testing.T) {
	f := setup(t)

	// Unknown QR code.
	w := f.do("GET", "/api/qr/status/QRnope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// Unknown merchant.
	w = f.do("POST", "/api/qr/generate", gin.H{
		"merchant_id":    int64(9999),
		"amount":         "10.00",
		"expiry_minutes": 30,
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	// Malformed amount.
	w = f.do("POST", "/api/qr/generate", gin.H{
		"merchant_id":    f.merchant.ID,
		"amount":         "ten dollars",
		"expiry_minutes": 30,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown transaction.
	w = f.do("GET", "/api/transactions/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// Wrong PIN on submission.
	qr := f.generateQR(t, "10.00", 30)
	w = f.do("POST", "/api/qr/pay", gin.H{
		"qr_code_id": qr.QRCodeID,
		"card_id":    f.card.ID,
		"pin":        "0000",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
