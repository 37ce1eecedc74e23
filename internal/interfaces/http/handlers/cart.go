// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/milkcart-backend/internal/domain/cart"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// Guest session cookies live as long as the Redis-backed guest cart
const guestSessionMaxAge = 7 * 24 * time.Hour

// CartHandler handles cart endpoints for both guests and users
type CartHandler struct {
	cartService *cart.Service
	db          *gorm.DB
}

// NewCartHandler creates a new cart handler
func NewCartHandler(db *gorm.DB, cartService *cart.Service) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		db:          db,
	}
}

// cartIdentity resolves the caller: authenticated user or guest session.
// Guests get a session cookie minted on first touch.
func (h *CartHandler) cartIdentity(c *gin.Context) (*uint, string, bool) {
	if userID, exists := middleware.GetUserIDFromContext(c); exists {
		return &userID, "", false
	}

	sessionID, err := c.Cookie("session_id")
	if err != nil || sessionID == "" {
		sessionID = uuid.New().String()
		c.SetCookie("session_id", sessionID, int(guestSessionMaxAge.Seconds()), "/", "", false, true)
	}
	return nil, sessionID, false
}

// callerIsB2B looks up the price tier for an authenticated caller
func (h *CartHandler) callerIsB2B(userID *uint) bool {
	if userID == nil {
		return false
	}
	var u user.User
	if err := h.db.Select("is_b2b").First(&u, *userID).Error; err != nil {
		return false
	}
	return u.IsB2B
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, sessionID, _ := h.cartIdentity(c)

	response, err := h.cartService.GetCart(userID, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    response,
	})
}

// AddItem handles POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, sessionID, _ := h.cartIdentity(c)

	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	response, err := h.cartService.AddItem(userID, sessionID, h.callerIsB2B(userID), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart",
		"data":    response,
	})
}

// UpdateItem handles PUT /cart/items/:productId
func (h *CartHandler) UpdateItem(c *gin.Context) {
	userID, sessionID, _ := h.cartIdentity(c)

	productID, ok := parseUintParam(c, "productId")
	if !ok {
		return
	}

	var req cart.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	response, err := h.cartService.UpdateItem(userID, sessionID, productID, req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart updated successfully",
		"data":    response,
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, sessionID, _ := h.cartIdentity(c)

	if err := h.cartService.ClearCart(userID, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
	})
}
