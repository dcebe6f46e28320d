package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardpay/qrpay/internal/handlers"
	"github.com/cardpay/qrpay/internal/service"
	"github.com/cardpay/qrpay/internal/telemetry"
)

func NewRouter(issuer *service.Issuer, processor *service.Processor, settlement *service.Settlement) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "qr-payment-service"})
	})

	qrHandler := handlers.NewQRHandler(issuer, processor)
	txHandler := handlers.NewTransactionHandler(settlement)

	api := r.Group("/api")
	{
		api.POST("/qr/generate", qrHandler.GenerateQR)
		api.POST("/qr/pay", qrHandler.PayQR)
		api.GET("/qr/status/:qrCodeId", qrHandler.GetQRStatus)

		api.POST("/transactions/confirm", txHandler.ConfirmTransaction)
		api.POST("/transactions/:id/settle", txHandler.SettleTransaction)
		api.POST("/transactions/:id/fail", txHandler.FailTransaction)
		api.GET("/transactions/:id", txHandler.GetTransaction)
	}

	return r
}
