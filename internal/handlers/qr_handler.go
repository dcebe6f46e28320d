package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cardpay/qrpay/internal/money"
	"github.com/cardpay/qrpay/internal/service"
	"github.com/cardpay/qrpay/internal/telemetry"
)

type QRHandler struct {
	issuer    *service.Issuer
	processor *service.Processor
}

func NewQRHandler(issuer *service.Issuer, processor *service.Processor) *QRHandler {
	return &QRHandler{issuer: issuer, processor: processor}
}

type generateQRRequest struct {
	MerchantID    int64  `json:"merchant_id" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Description   string `json:"description"`
	ExpiryMinutes int    `json:"expiry_minutes" binding:"required"`
}

func (h *QRHandler) GenerateQR(c *gin.Context) {
	var req generateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Message: "invalid request body"})
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Message: "invalid amount"})
		return
	}

	view, err := h.issuer.Generate(c.Request.Context(), service.GenerateRequest{
		MerchantID:    req.MerchantID,
		Amount:        amount,
		Description:   req.Description,
		ExpiryMinutes: req.ExpiryMinutes,
	})
	if err != nil {
		telemetry.Logger.Error("Error generating QR code",
			zap.Int64("merchant_id", req.MerchantID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	respondOK(c, "QR code generated successfully", view)
}

type payQRRequest struct {
	QRCodeID string `json:"qr_code_id" binding:"required"`
	CardID   int64  `json:"card_id" binding:"required"`
	PIN      string `json:"pin" binding:"required"`
}

func (h *QRHandler) PayQR(c *gin.Context) {
	var req payQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Message: "invalid request body"})
		return
	}

	view, err := h.processor.Submit(c.Request.Context(), req.QRCodeID, req.CardID, req.PIN)
	if err != nil {
		telemetry.Logger.Error("Error processing QR payment",
			zap.String("qr_code_id", req.QRCodeID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	respondOK(c, "QR payment processed successfully", view)
}

func (h *QRHandler) GetQRStatus(c *gin.Context) {
	view, err := h.processor.QRStatus(c.Request.Context(), c.Param("qrCodeId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "QR code status retrieved successfully", view)
}
