package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardpay/qrpay/internal/apperrors"
)

// apiResponse is the envelope every endpoint returns.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindInsufficientBalance:
		status = http.StatusPaymentRequired
	}
	c.JSON(status, apiResponse{Success: false, Message: apperrors.MessageOf(err)})
}
