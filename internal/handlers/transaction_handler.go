package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cardpay/qrpay/internal/service"
	"github.com/cardpay/qrpay/internal/telemetry"
)

type TransactionHandler struct {
	settlement *service.Settlement
}

func NewTransactionHandler(settlement *service.Settlement) *TransactionHandler {
	return &TransactionHandler{settlement: settlement}
}

type confirmTransactionRequest struct {
	TransactionID      string `json:"transaction_id" binding:"required"`
	Confirm            *bool  `json:"confirm" binding:"required"`
	PIN                string `json:"pin"`
	CancellationReason string `json:"cancellation_reason"`
}

func (h *TransactionHandler) ConfirmTransaction(c *gin.Context) {
	var req confirmTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Message: "invalid request body"})
		return
	}

	view, err := h.settlement.ConfirmOrCancel(c.Request.Context(), req.TransactionID, *req.Confirm, req.PIN, req.CancellationReason)
	if err != nil {
		telemetry.Logger.Error("Error confirming transaction",
			zap.String("transaction_id", req.TransactionID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	respondOK(c, "Transaction processed successfully", view)
}

func (h *TransactionHandler) SettleTransaction(c *gin.Context) {
	view, err := h.settlement.Settle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Payment settled successfully", view)
}

type failTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *TransactionHandler) FailTransaction(c *gin.Context) {
	var req failTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Message: "invalid request body"})
		return
	}

	view, err := h.settlement.Fail(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Payment marked as failed", view)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	view, err := h.settlement.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Transaction retrieved successfully", view)
}
