// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/order"
	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"github.com/your-org/milkcart-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// PaymentHandler handles payment gateway endpoints
type PaymentHandler struct {
	db           *gorm.DB
	gateway      *payment.Gateway
	orderService *order.Service
	config       *config.Config
	log          *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(db *gorm.DB, orderService *order.Service, cfg *config.Config, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		db:           db,
		gateway:      payment.NewGateway(cfg),
		orderService: orderService,
		config:       cfg,
		log:          log,
	}
}

// InitiateRequest starts a gateway checkout for a pending order payment
type InitiateRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

// Initiate handles POST /payment/initiate
func (h *PaymentHandler) Initiate(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	var pay payment.Payment
	err := h.db.Where("order_id = ? AND user_id = ?", req.OrderID, userID).First(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment"})
		return
	}
	if pay.Status != payment.StatusPending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment is not pending"})
		return
	}

	ord, err := h.orderService.GetOrder(req.OrderID)
	if err != nil {
		respondOrderError(c, err)
		return
	}

	gwOrder, err := h.gateway.CreateOrder(c.Request.Context(), pay.Amount, ord.OrderNumber)
	if err != nil {
		h.log.WithError(err).WithField("order_id", req.OrderID).Error("gateway order creation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
		return
	}

	if err := h.db.Model(&pay).Updates(map[string]interface{}{
		"status":           payment.StatusProcessing,
		"gateway_order_id": gwOrder.ID,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment initiated",
		"data": gin.H{
			"gateway_order_id": gwOrder.ID,
			"amount":           pay.Amount,
			"currency":         "INR",
			"key_id":           h.config.Gateway.KeyID,
		},
	})
}

// VerifyRequest is the checkout completion callback from the client
type VerifyRequest struct {
	OrderID          uint   `json:"order_id" binding:"required"`
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// Verify handles POST /payment/verify. Signature verification settles
// the payment and confirms the order.
func (h *PaymentHandler) Verify(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	var pay payment.Payment
	err := h.db.Where("order_id = ? AND user_id = ?", req.OrderID, userID).First(&pay).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment record not found"})
		return
	}
	if pay.GatewayOrderID != req.GatewayOrderID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Gateway order mismatch"})
		return
	}

	if err := h.gateway.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		if markErr := h.orderService.MarkPaymentFailed(req.OrderID); markErr != nil {
			h.log.WithError(markErr).WithField("order_id", req.OrderID).Error("failed to mark payment failed")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment verification failed"})
		return
	}

	ord, err := h.orderService.ConfirmPayment(req.OrderID, req.GatewayPaymentID)
	if err != nil {
		respondOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment verified successfully",
		"data":    ord,
	})
}

// webhookEvent is the subset of the gateway webhook payload we consume
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Webhook handles POST /webhooks/payment. Server-to-server gateway
// notifications are authenticated by HMAC signature over the raw body.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if err := payment.VerifyWebhookSignature(body, signature, h.config.Gateway.KeySecret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	gatewayOrderID := event.Payload.Payment.Entity.OrderID
	var pay payment.Payment
	if err := h.db.Where("gateway_order_id = ?", gatewayOrderID).First(&pay).Error; err != nil {
		// Unknown correlation: acknowledge so the gateway stops retrying
		c.JSON(http.StatusOK, gin.H{"message": "No matching payment"})
		return
	}

	switch event.Event {
	case "payment.captured":
		if pay.OrderID != nil && pay.Status != payment.StatusSucceeded {
			if _, err := h.orderService.ConfirmPayment(*pay.OrderID, event.Payload.Payment.Entity.ID); err != nil {
				h.log.WithError(err).WithField("order_id", *pay.OrderID).Error("webhook confirmation failed")
			}
		}
	case "payment.failed":
		if pay.OrderID != nil {
			if err := h.orderService.MarkPaymentFailed(*pay.OrderID); err != nil {
				h.log.WithError(err).WithField("order_id", *pay.OrderID).Error("webhook failure marking failed")
			}
		}
	default:
		h.log.WithField("event", event.Event).Debug("ignoring webhook event")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Webhook processed"})
}
