// internal/interfaces/http/handlers/analytics.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/your-org/milkcart-backend/internal/domain/analytics"
)

// AnalyticsHandler handles admin analytics endpoints
type AnalyticsHandler struct {
	analyticsService *analytics.Service
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
	}
}

// Dashboard handles GET /admin/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	periodDays := 30
	if periodStr := c.Query("period_days"); periodStr != "" {
		if p, err := strconv.Atoi(periodStr); err == nil && p > 0 && p <= 365 {
			periodDays = p
		}
	}

	dashboard, err := h.analyticsService.GetDashboard(periodDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Analytics retrieved successfully",
		"data":    dashboard,
	})
}

// TopProducts handles GET /admin/analytics/top-products
func (h *AnalyticsHandler) TopProducts(c *gin.Context) {
	periodDays := 30
	if periodStr := c.Query("period_days"); periodStr != "" {
		if p, err := strconv.Atoi(periodStr); err == nil && p > 0 && p <= 365 {
			periodDays = p
		}
	}
	limit := 10
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -periodDays)

	sales, err := h.analyticsService.TopProducts(from, to, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute top products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Top products retrieved successfully",
		"data":    sales,
	})
}
