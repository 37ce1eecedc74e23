// internal/domain/product/service_test.go
package product

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/your-org/milkcart-backend/internal/config"
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

	require.NoError(t, db.AutoMigrate(&Product{}, &StockMovement{}))
	return NewService(db, &config.Config{}), db
}

func createProduct(t *testing.T, svc *Service, sku string, milkType MilkType, stock int) *Product {
	t.Helper()

	prod, err := svc.CreateProduct(&CreateProductRequest{
		SKU:      sku,
		Name:     sku,
		Type:     milkType,
		PriceB2C: 6000,
		PriceB2B: 5200,
		Stock:    stock,
	})
	require.NoError(t, err)
	return prod
}

func TestCreateProductDefaults(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	prod := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 40)

	require.True(t, prod.IsActive)
	require.Equal(t, "litre", prod.Unit)
	require.Equal(t, 10, prod.LowStockThreshold)
	require.Equal(t, 40, prod.Stock)
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 40)

	_, err := svc.CreateProduct(&CreateProductRequest{
		SKU:      "COW-FULL-1L",
		Name:     "Another",
		Type:     MilkTypeCow,
		PriceB2C: 100,
		PriceB2B: 100,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestCreateProductRejectsUnknownType(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.CreateProduct(&CreateProductRequest{
		SKU:      "GOAT-1L",
		Name:     "Goat Milk",
		Type:     "goat_milk",
		PriceB2C: 100,
		PriceB2B: 100,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid milk type")
}

func TestGetProductsFiltersInactive(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	live := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 40)
	retired := createProduct(t, svc, "BUF-FULL-1L", MilkTypeBuffalo, 40)
	require.NoError(t, svc.DeactivateProduct(retired.ID))

	list, err := svc.GetProducts(&ProductListRequest{Page: 1, Limit: 20, OnlyLive: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), list.Total)
	require.Equal(t, live.ID, list.Products[0].ID)

	// Admin views include retired products
	all, err := svc.GetProducts(&ProductListRequest{Page: 1, Limit: 20, OnlyLive: false})
	require.NoError(t, err)
	require.Equal(t, int64(2), all.Total)
}

func TestGetProductsFiltersByType(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 40)
	buffalo := createProduct(t, svc, "BUF-FULL-1L", MilkTypeBuffalo, 40)

	list, err := svc.GetProducts(&ProductListRequest{Page: 1, Limit: 20, OnlyLive: true, Type: MilkTypeBuffalo})
	require.NoError(t, err)
	require.Equal(t, int64(1), list.Total)
	require.Equal(t, buffalo.ID, list.Products[0].ID)
}

func TestUpdateProductPartial(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	prod := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 40)

	newPrice := int64(6500)
	updated, err := svc.UpdateProduct(prod.ID, &UpdateProductRequest{PriceB2C: &newPrice})
	require.NoError(t, err)
	require.Equal(t, int64(6500), updated.PriceB2C)
	// Untouched fields keep their values
	require.Equal(t, int64(5200), updated.PriceB2B)
	require.Equal(t, "COW-FULL-1L", updated.Name)
}

func TestUpdateProductRejectsNegativePrice(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	prod := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 40)

	bad := int64(-1)
	_, err := svc.UpdateProduct(prod.ID, &UpdateProductRequest{PriceB2B: &bad})
	require.Error(t, err)
}

func TestRestockRecordsMovement(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	prod := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 5)

	updated, err := svc.Restock(prod.ID, 20, 1)
	require.NoError(t, err)
	require.Equal(t, 25, updated.Stock)

	var movement StockMovement
	require.NoError(t, db.Where("product_id = ?", prod.ID).First(&movement).Error)
	require.Equal(t, ReasonRestock, movement.Reason)
	require.Equal(t, 20, movement.Quantity)
	require.Equal(t, 5, movement.PreviousQuantity)
	require.Equal(t, 25, movement.NewQuantity)
}

func TestRestockRejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	prod := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 5)

	_, err := svc.Restock(prod.ID, 0, 1)
	require.Error(t, err)
	_, err = svc.Restock(prod.ID, -3, 1)
	require.Error(t, err)
}

func TestFirstActiveCowMilkPrefersLowestID(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	first := createProduct(t, svc, "COW-FULL-1L", MilkTypeCow, 5)
	createProduct(t, svc, "COW-TONED-1L", MilkTypeCow, 5)
	require.NoError(t, svc.DeactivateProduct(first.ID))

	prod, err := svc.FirstActiveCowMilk()
	require.NoError(t, err)
	require.Equal(t, "COW-TONED-1L", prod.SKU)
}

func TestPriceForTier(t *testing.T) {
	t.Parallel()

	prod := Product{PriceB2C: 6000, PriceB2B: 5200}
	require.Equal(t, int64(6000), prod.PriceFor(false))
	require.Equal(t, int64(5200), prod.PriceFor(true))
}

func TestIsLowStock(t *testing.T) {
	t.Parallel()

	prod := Product{Stock: 10, LowStockThreshold: 10}
	require.True(t, prod.IsLowStock())
	prod.Stock = 11
	require.False(t, prod.IsLowStock())
}
