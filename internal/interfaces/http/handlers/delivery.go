// internal/interfaces/http/handlers/delivery.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/milkcart-backend/internal/domain/order"
	"github.com/your-org/milkcart-backend/internal/interfaces/http/middleware"
)

// DeliveryHandler handles the delivery actor's order queue
type DeliveryHandler struct {
	orderService *order.Service
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(orderService *order.Service) *DeliveryHandler {
	return &DeliveryHandler{
		orderService: orderService,
	}
}

// GetQueue handles GET /delivery/orders. It returns unassigned
// home-delivery orders plus the caller's own assignments.
func (h *DeliveryHandler) GetQueue(c *gin.Context) {
	deliveryBoyID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	page, limit := parsePagination(c)

	response, err := h.orderService.GetDeliveryOrders(deliveryBoyID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve delivery orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Delivery orders retrieved successfully",
		"data":    response,
	})
}

// TakeOrder handles PUT /delivery/orders/:id/take
func (h *DeliveryHandler) TakeOrder(c *gin.Context) {
	deliveryBoyID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	role, _ := middleware.GetUserRoleFromContext(c)

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	ord, err := h.orderService.TakeOrder(id, deliveryBoyID, role)
	if err != nil {
		respondOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order taken successfully",
		"data":    ord,
	})
}

// UpdateStatus handles PUT /delivery/orders/:id/status, the delivery
// actor moving their order through the delivery stages.
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	deliveryBoyID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	role, _ := middleware.GetUserRoleFromContext(c)

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	// Delivery actors may only touch orders assigned to them
	existing, err := h.orderService.GetOrder(id)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	if existing.DeliveryBoyID == nil || *existing.DeliveryBoyID != deliveryBoyID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	ord, err := h.orderService.UpdateStatus(id, req.Status, deliveryBoyID, role)
	if err != nil {
		respondOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"data":    ord,
	})
}
