// internal/domain/cart/service_test.go
package cart

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&product.Product{}, &CartItem{}))
	return NewService(db, nil, &config.Config{}), db
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, priceB2C, priceB2B int64, active bool) *product.Product {
	t.Helper()

	p := &product.Product{
		SKU:      sku,
		Name:     sku,
		Type:     product.MilkTypeCow,
		PriceB2C: priceB2C,
		PriceB2B: priceB2B,
		Stock:    50,
		IsActive: active,
	}
	require.NoError(t, db.Create(p).Error)
	if !active {
		// gorm's default:true tag overrides a zero-value false on insert
		require.NoError(t, db.Model(p).Update("is_active", false).Error)
	}
	return p
}

func TestAddItemSnapshotsTierPrice(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	userID := uint(1)

	resp, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, int64(3000), resp.Items[0].Price)
	require.Equal(t, 2, resp.Items[0].Quantity)
	require.Equal(t, int64(6000), resp.Totals.SubTotal)

	// B2B callers get the business tier
	b2bUser := uint(2)
	resp, err = svc.AddItem(&b2bUser, "", true, &AddToCartRequest{ProductID: prod.ID, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2600), resp.Items[0].Price)
}

func TestAddItemAccumulatesQuantity(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	userID := uint(1)

	_, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)
	resp, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 3})
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	require.Equal(t, 5, resp.Items[0].Quantity)
	require.Equal(t, 5, resp.Totals.TotalQuantity)
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, false)
	userID := uint(1)

	_, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no longer available")
}

func TestUpdateItemQuantity(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	userID := uint(1)

	_, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)

	resp, err := svc.UpdateItem(&userID, "", prod.ID, 4)
	require.NoError(t, err)
	require.Equal(t, 4, resp.Items[0].Quantity)
	require.Equal(t, int64(12000), resp.Totals.SubTotal)
}

func TestUpdateItemToZeroRemovesLine(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	userID := uint(1)

	_, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 2})
	require.NoError(t, err)

	resp, err := svc.UpdateItem(&userID, "", prod.ID, 0)
	require.NoError(t, err)
	require.Empty(t, resp.Items)
	require.Zero(t, resp.Totals.SubTotal)
}

func TestUpdateItemUnknownProduct(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	userID := uint(1)

	_, err := svc.UpdateItem(&userID, "", 999, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cart item not found")
}

func TestClearCart(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	cow := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	buffalo := seedProduct(t, db, "BUF-FULL-1L", 5000, 4400, true)
	userID := uint(1)

	_, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: cow.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: buffalo.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(&userID, ""))

	resp, err := svc.GetCart(&userID, "")
	require.NoError(t, err)
	require.Empty(t, resp.Items)
}

func TestGetCartAttachesProductDetails(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	userID := uint(1)

	_, err := svc.AddItem(&userID, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 1})
	require.NoError(t, err)

	resp, err := svc.GetCart(&userID, "")
	require.NoError(t, err)
	require.NotNil(t, resp.Items[0].Product)
	require.Equal(t, "COW-FULL-1L", resp.Items[0].Product.SKU)
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := seedProduct(t, db, "COW-FULL-1L", 3000, 2600, true)
	alice := uint(1)
	bob := uint(2)

	_, err := svc.AddItem(&alice, "", false, &AddToCartRequest{ProductID: prod.ID, Quantity: 3})
	require.NoError(t, err)

	resp, err := svc.GetCart(&bob, "")
	require.NoError(t, err)
	require.Empty(t, resp.Items)
}

func TestCalculateTotals(t *testing.T) {
	t.Parallel()

	totals := calculateTotals([]CartItemResponse{
		{Quantity: 2, Price: 3000},
		{Quantity: 1, Price: 5000},
	})
	require.Equal(t, 2, totals.ItemCount)
	require.Equal(t, 3, totals.TotalQuantity)
	require.Equal(t, int64(11000), totals.SubTotal)
}
