package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainpay/payment-reconciler/internal/interfaces"
	"github.com/chainpay/payment-reconciler/internal/models"
	"github.com/chainpay/payment-reconciler/internal/service"
	"github.com/chainpay/payment-reconciler/internal/telemetry"
	"github.com/chainpay/payment-reconciler/internal/wallet"
)

type PaymentHandler struct {
	repo       interfaces.PaymentRepository
	checker    *service.Checker
	wallets    *wallet.Provider
	paymentTTL time.Duration
}

func NewPaymentHandler(repo interfaces.PaymentRepository, checker *service.Checker, wallets *wallet.Provider, paymentTTL time.Duration) *PaymentHandler {
	return &PaymentHandler{
		repo:       repo,
		checker:    checker,
		wallets:    wallets,
		paymentTTL: paymentTTL,
	}
}

type createPaymentRequest struct {
	Network  models.Network `json:"network" binding:"required"`
	Currency string         `json:"currency" binding:"required"`
	Amount   string         `json:"amount" binding:"required"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if _, err := models.ResolveToken(req.Network, req.Currency); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return
	}

	address, err := h.wallets.ProvideAddress(req.Network)
	if err != nil {
		telemetry.Logger.Error("Error obtaining deposit address",
			zap.String("network", string(req.Network)),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to obtain deposit address"})
		return
	}

	now := time.Now().UTC()
	payment := &models.PaymentRecord{
		UniqueID:         uuid.NewString(),
		Status:           models.StatusPending,
		Network:          req.Network,
		Currency:         req.Currency,
		RecipientAddress: address,
		ExpectedAmount:   amount,
		CreatedAt:        now,
		ExpiresAt:        now.Add(h.paymentTTL),
	}

	if err := h.repo.Insert(c.Request.Context(), payment); err != nil {
		telemetry.Logger.Error("Error inserting payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// GetPayment runs an on-demand check before answering, so the status page
// reflects chain state without waiting for the next poll cycle.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	uniqueID := c.Param("id")

	payment, err := h.checker.CheckByUniqueID(c.Request.Context(), uniqueID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) GetPaymentQR(c *gin.Context) {
	uniqueID := c.Param("id")

	payment, err := h.repo.GetByUniqueID(c.Request.Context(), uniqueID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
		return
	}

	png, err := wallet.QRCodePNG(payment.RecipientAddress, payment.ExpectedAmount.String(), 256)
	if err != nil {
		telemetry.Logger.Error("Error rendering QR code",
			zap.String("payment_id", uniqueID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
