package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QRCodesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpay_qr_codes_generated_total",
		Help: "Number of QR payment requests issued.",
	})

	PaymentsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpay_payments_submitted_total",
		Help: "Number of payment submissions that opened a pending transaction.",
	})

	// SettlementsTotal counts terminal transitions by outcome
	// (success, failed, cancelled).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpay_settlements_total",
		Help: "Number of transactions driven to a terminal state.",
	}, []string{"outcome"})
)
