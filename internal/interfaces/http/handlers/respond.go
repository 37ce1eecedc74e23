// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/milkcart-backend/internal/domain/order"
)

// respondOrderError maps order domain errors onto HTTP status codes so
// every order endpoint reports conflicts the same way.
func respondOrderError(c *gin.Context, err error) {
	var stockErr *order.InsufficientStockError
	var transitionErr *order.InvalidTransitionError

	switch {
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, order.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.As(err, &stockErr),
		errors.As(err, &transitionErr),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, order.ErrMissingPhone),
		errors.Is(err, order.ErrAlreadyCancelled),
		errors.Is(err, order.ErrAlreadyAssigned),
		errors.Is(err, order.ErrTerminalState),
		errors.Is(err, order.ErrNotHomeDelivery),
		errors.Is(err, order.ErrNotCancelledState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// parseUintParam parses a numeric path parameter
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	val, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(val), true
}

// parsePagination extracts page/limit query params with sane bounds
func parsePagination(c *gin.Context) (int, int) {
	page := 1
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	return page, limit
}
