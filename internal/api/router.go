package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chainpay/payment-reconciler/internal/handlers"
	"github.com/chainpay/payment-reconciler/internal/interfaces"
	"github.com/chainpay/payment-reconciler/internal/service"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
	"github.com/chainpay/payment-reconciler/internal/wallet"
)

func NewRouter(repo interfaces.PaymentRepository, checker *service.Checker, wallets *wallet.Provider, paymentTTL time.Duration) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-reconciler"})
	})

	// Payment routes
	paymentHandler := handlers.NewPaymentHandler(repo, checker, wallets, paymentTTL)
	r.POST("/payments", paymentHandler.CreatePayment)
	r.GET("/payments/:id", paymentHandler.GetPayment)
	r.GET("/payments/:id/qr", paymentHandler.GetPaymentQR)

	return r
}
