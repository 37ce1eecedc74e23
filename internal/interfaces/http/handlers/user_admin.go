// internal/interfaces/http/handlers/user_admin.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// UserAdminHandler handles admin user management endpoints
type UserAdminHandler struct {
	userService *user.Service
}

// NewUserAdminHandler creates a new admin user handler
func NewUserAdminHandler(db *gorm.DB, cfg *config.Config) *UserAdminHandler {
	return &UserAdminHandler{
		userService: user.NewService(db, auth.NewPasswordManager(cfg)),
	}
}

// SetRoleRequest represents a role change
type SetRoleRequest struct {
	Role user.Role `json:"role" binding:"required"`
}

// SetRole handles PUT /admin/users/:id/role
func (h *UserAdminHandler) SetRole(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	u, err := h.userService.SetRole(id, req.Role)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User role updated successfully",
		"data":    u,
	})
}

// ListDeliveryAgents handles GET /admin/delivery-agents
func (h *UserAdminHandler) ListDeliveryAgents(c *gin.Context) {
	agents, err := h.userService.ListDeliveryAgents()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve delivery agents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Delivery agents retrieved successfully",
		"data":    agents,
	})
}
