package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardpay/qrpay/internal/apperrors"
	"github.com/cardpay/qrpay/internal/models"
)

func TestGenerateCreatesActiveQRCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.issuer.Generate(ctx, GenerateRequest{
		MerchantID:    env.merchant.ID,
		Amount:        5000,
		Description:   "lunch special",
		ExpiryMinutes: 30,
	})
	require.NoError(t, err)

	require.Equal(t, models.QRActive, view.Status)
	require.Equal(t, "50.00", view.Amount)
	require.Equal(t, env.merchant.Name, view.MerchantName)
	require.True(t, view.ExpiryTime.After(view.CreatedAt))
	require.NotEmpty(t, view.QRCodeID)

	stored, err := env.store.GetQRCode(ctx, view.QRCodeID)
	require.NoError(t, err)
	require.Equal(t, models.QRActive, stored.Status)
	require.True(t, stored.ExpiryTime.After(stored.CreatedAt))
	require.Nil(t, stored.TransactionID)
	require.Nil(t, stored.CardID)
}

func TestGenerateUnknownMerchant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Generate(context.Background(), GenerateRequest{
		MerchantID:    9999,
		Amount:        5000,
		ExpiryMinutes: 30,
	})
	require.Error(t, err)
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGenerateRejectsBadInputs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []GenerateRequest{
		{MerchantID: env.merchant.ID, Amount: 0, ExpiryMinutes: 30},
		{MerchantID: env.merchant.ID, Amount: -100, ExpiryMinutes: 30},
		{MerchantID: env.merchant.ID, Amount: 5000, ExpiryMinutes: 0},
		{MerchantID: env.merchant.ID, Amount: 5000, ExpiryMinutes: 1441},
	}
	for _, req := range cases {
		_, err := env.issuer.Generate(ctx, req)
		require.Error(t, err)
		require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	}
}

func TestEncodePayloadIsSideEffectFree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.issuer.Generate(ctx, GenerateRequest{
		MerchantID:    env.merchant.ID,
		Amount:        5000,
		Description:   "lunch special",
		ExpiryMinutes: 30,
	})
	require.NoError(t, err)

	var payload struct {
		QRCodeID        string `json:"qr_code_id"`
		MerchantID      int64  `json:"merchant_id"`
		Amount          string `json:"amount"`
		Description     string `json:"description"`
		ReferenceNumber string `json:"reference_number"`
	}
	require.NoError(t, json.Unmarshal([]byte(view.QRCodeData), &payload))
	require.Equal(t, view.QRCodeID, payload.QRCodeID)
	require.Equal(t, env.merchant.ID, payload.MerchantID)
	require.Equal(t, "50.00", payload.Amount)
	require.Equal(t, "lunch special", payload.Description)
	require.NotEmpty(t, payload.ReferenceNumber)

	// Recomputing the payload touches nothing in the store; only the
	// reference number varies.
	stored, err := env.store.GetQRCode(ctx, view.QRCodeID)
	require.NoError(t, err)
	again, err := env.issuer.EncodePayload(stored)
	require.NoError(t, err)

	var second struct {
		QRCodeID string `json:"qr_code_id"`
		Amount   string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(again), &second))
	require.Equal(t, payload.QRCodeID, second.QRCodeID)
	require.Equal(t, payload.Amount, second.Amount)
}

func TestIDGeneratorFormats(t *testing.T) {
	gen := NewIDGenerator()

	id := gen.QRCodeID()
	require.True(t, strings.HasPrefix(id, "QR"))
	require.Regexp(t, `^QR\d+$`, id)

	ref := gen.ReferenceNumber()
	require.True(t, strings.HasPrefix(ref, "REF"))
	require.Regexp(t, `^REF\d+$`, ref)
}
