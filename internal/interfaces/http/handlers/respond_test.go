// internal/interfaces/http/handlers/respond_test.go
package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/your-org/milkcart-backend/internal/domain/order"
)

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestRespondOrderErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{order.ErrOrderNotFound, http.StatusNotFound},
		{order.ErrItemNotFound, http.StatusNotFound},
		{order.ErrNotOwner, http.StatusForbidden},
		{order.ErrEmptyCart, http.StatusBadRequest},
		{order.ErrMissingAddress, http.StatusBadRequest},
		{order.ErrMissingPhone, http.StatusBadRequest},
		{order.ErrAlreadyCancelled, http.StatusBadRequest},
		{order.ErrAlreadyAssigned, http.StatusBadRequest},
		{order.ErrTerminalState, http.StatusBadRequest},
		{order.ErrNotHomeDelivery, http.StatusBadRequest},
		{order.ErrNotCancelledState, http.StatusBadRequest},
		{&order.InsufficientStockError{ProductName: "Cow Milk", Available: 1, Requested: 3}, http.StatusBadRequest},
		{&order.InvalidTransitionError{From: order.OrderStatusDelivered, To: order.OrderStatusPending}, http.StatusBadRequest},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		c, w := testContext("/orders/1")
		respondOrderError(c, tc.err)
		require.Equal(t, tc.status, w.Code, "error %v", tc.err)
	}
}

func TestRespondOrderErrorHidesInternalDetails(t *testing.T) {
	c, w := testContext("/orders/1")
	respondOrderError(c, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "connection refused")
}

func TestParseUintParam(t *testing.T) {
	c, _ := testContext("/orders/42")
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, ok := parseUintParam(c, "id")
	require.True(t, ok)
	require.Equal(t, uint(42), id)

	c, w := testContext("/orders/abc")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	_, ok = parseUintParam(c, "id")
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePagination(t *testing.T) {
	c, _ := testContext("/orders?page=3&limit=50")
	page, limit := parsePagination(c)
	require.Equal(t, 3, page)
	require.Equal(t, 50, limit)

	// Out-of-range values fall back to defaults
	c, _ = testContext("/orders?page=-1&limit=500")
	page, limit = parsePagination(c)
	require.Equal(t, 1, page)
	require.Equal(t, 20, limit)

	c, _ = testContext("/orders")
	page, limit = parsePagination(c)
	require.Equal(t, 1, page)
	require.Equal(t, 20, limit)
}
