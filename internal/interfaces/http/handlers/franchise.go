// internal/interfaces/http/handlers/franchise.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/milkcart-backend/internal/domain/franchise"
	"github.com/your-org/milkcart-backend/internal/interfaces/http/middleware"
)

// FranchiseHandler handles franchise application endpoints
type FranchiseHandler struct {
	franchiseService *franchise.Service
}

// NewFranchiseHandler creates a new franchise handler
func NewFranchiseHandler(franchiseService *franchise.Service) *FranchiseHandler {
	return &FranchiseHandler{
		franchiseService: franchiseService,
	}
}

// Apply handles POST /franchise/apply
func (h *FranchiseHandler) Apply(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req franchise.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	app, err := h.franchiseService.Apply(userID, &req)
	if err != nil {
		if errors.Is(err, franchise.ErrAlreadyApplied) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit application"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Franchise application submitted successfully",
		"data":    app,
	})
}

// MyApplication handles GET /franchise/me
func (h *FranchiseHandler) MyApplication(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	app, err := h.franchiseService.GetByUser(userID)
	if err != nil {
		if errors.Is(err, franchise.ErrApplicationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve application"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Application retrieved successfully",
		"data":    app,
	})
}

// AdminList handles GET /admin/franchises
func (h *FranchiseHandler) AdminList(c *gin.Context) {
	page, limit := parsePagination(c)
	status := franchise.Status(c.Query("status"))

	apps, total, err := h.franchiseService.List(status, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve applications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Applications retrieved successfully",
		"data": gin.H{
			"applications": apps,
			"total":        total,
			"page":         page,
			"limit":        limit,
		},
	})
}

// Approve handles PUT /admin/franchises/:id/approve
func (h *FranchiseHandler) Approve(c *gin.Context) {
	reviewerID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	role, _ := middleware.GetUserRoleFromContext(c)

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	app, err := h.franchiseService.Approve(id, reviewerID, role)
	if err != nil {
		respondFranchiseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Franchise approved successfully",
		"data":    app,
	})
}

// RejectRequest carries the rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles PUT /admin/franchises/:id/reject
func (h *FranchiseHandler) Reject(c *gin.Context) {
	reviewerID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	role, _ := middleware.GetUserRoleFromContext(c)

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req RejectRequest
	_ = c.ShouldBindJSON(&req)

	app, err := h.franchiseService.Reject(id, reviewerID, role, req.Reason)
	if err != nil {
		respondFranchiseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Franchise application rejected",
		"data":    app,
	})
}

// Activate handles PUT /admin/franchises/:id/activate
func (h *FranchiseHandler) Activate(c *gin.Context) {
	role, _ := middleware.GetUserRoleFromContext(c)

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	app, err := h.franchiseService.Activate(id, role)
	if err != nil {
		respondFranchiseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Franchise activated successfully",
		"data":    app,
	})
}

func respondFranchiseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, franchise.ErrApplicationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, franchise.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, franchise.ErrAlreadyDecided), errors.Is(err, franchise.ErrNotApproved):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
