// internal/domain/order/service_test.go
package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/cart"
	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"github.com/your-org/milkcart-backend/internal/domain/subscription"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// capturingPublisher records published events for assertions
type capturingPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	Topic string
	Event events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedEvent{Topic: topic, Event: event})
	return nil
}

func (p *capturingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []string
	for _, e := range p.published {
		kinds = append(kinds, e.Event.Kind)
	}
	return kinds
}

var emailSeq int64

func newTestService(t *testing.T) (*Service, *gorm.DB, *capturingPublisher) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&user.User{},
		&user.Address{},
		&product.Product{},
		&product.StockMovement{},
		&cart.CartItem{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&payment.Payment{},
		&subscription.Subscription{},
	))

	cfg := &config.Config{
		Delivery: config.DeliveryConfig{
			HomeDeliveryCharge: 5000,
			FreeMilkQuantity:   2,
		},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	publisher := &capturingPublisher{}
	svc := NewService(db, cfg, cart.NewService(db, nil, cfg), publisher, log)
	return svc, db, publisher
}

func seedUser(t *testing.T, db *gorm.DB, role user.Role, isB2B bool) *user.User {
	t.Helper()

	u := &user.User{
		Email:    fmt.Sprintf("user%d@example.com", atomic.AddInt64(&emailSeq, 1)),
		Password: "hashed",
		Phone:    "9876543210",
		Role:     role,
		IsB2B:    isB2B,
		IsActive: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, milkType product.MilkType, priceB2C, priceB2B int64, stock int) *product.Product {
	t.Helper()

	p := &product.Product{
		SKU:               sku,
		Name:              sku,
		Type:              milkType,
		PriceB2C:          priceB2C,
		PriceB2B:          priceB2B,
		Stock:             stock,
		LowStockThreshold: 0,
		IsActive:          true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func addCartLine(t *testing.T, db *gorm.DB, userID, productID uint, quantity int, price int64) {
	t.Helper()

	require.NoError(t, db.Create(&cart.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	}).Error)
}

func currentStock(t *testing.T, db *gorm.DB, productID uint) int {
	t.Helper()

	var p product.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.Stock
}

func TestCreateOrderComputesTotalsAndTakesStock(t *testing.T) {
	t.Parallel()

	svc, db, publisher := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	buffalo := seedProduct(t, db, "BUF-FULL-1L", product.MilkTypeBuffalo, 5000, 4400, 5)
	addCartLine(t, db, buyer.ID, cow.ID, 2, 3000)
	addCartLine(t, db, buyer.ID, buffalo.ID, 1, 5000)

	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{
		DeliveryType:    DeliveryTypeHome,
		DeliveryAddress: "12 Dairy Lane, Coimbatore",
	})
	require.NoError(t, err)

	ord := resp.Order
	require.Equal(t, OrderStatusPending, ord.Status)
	require.Equal(t, int64(11000), ord.SubtotalAmount)
	require.Equal(t, int64(5000), ord.DeliveryCharge)
	require.Equal(t, int64(16000), ord.TotalAmount)
	require.NotEmpty(t, ord.OrderNumber)
	require.Len(t, ord.Items, 2)

	// Stock taken exactly once per line
	require.Equal(t, 3, currentStock(t, db, cow.ID))
	require.Equal(t, 4, currentStock(t, db, buffalo.ID))

	// Audit trail written for each decrement
	var movements []product.StockMovement
	require.NoError(t, db.Where("reference_id = ?", ord.ID).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Equal(t, product.ReasonOrder, m.Reason)
		require.Negative(t, m.Quantity)
	}

	// A pending payment record covers the full total
	require.NotNil(t, resp.Payment)
	require.Equal(t, payment.StatusPending, resp.Payment.Status)
	require.Equal(t, ord.TotalAmount, resp.Payment.Amount)

	// The cart is emptied after the order commits
	var remaining int64
	require.NoError(t, db.Model(&cart.CartItem{}).Where("user_id = ?", buyer.ID).Count(&remaining).Error)
	require.Zero(t, remaining)

	require.Contains(t, publisher.kinds(), events.KindNewOrder)
}

func TestCreateOrderUsesB2BPrices(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, true)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 10)
	addCartLine(t, db, buyer.ID, cow.ID, 3, 2600)

	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.NoError(t, err)

	require.Equal(t, int64(2600), resp.Order.Items[0].Price)
	require.Equal(t, int64(7800), resp.Order.SubtotalAmount)
	// No delivery charge for pickup
	require.Equal(t, int64(7800), resp.Order.TotalAmount)
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	buffalo := seedProduct(t, db, "BUF-FULL-1L", product.MilkTypeBuffalo, 5000, 4400, 2)
	addCartLine(t, db, buyer.ID, cow.ID, 2, 3000)
	addCartLine(t, db, buyer.ID, buffalo.ID, 3, 5000)

	_, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{
		DeliveryType:    DeliveryTypeHome,
		DeliveryAddress: "12 Dairy Lane",
	})
	require.Error(t, err)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, buffalo.ID, stockErr.ProductID)
	require.Equal(t, "BUF-FULL-1L", stockErr.ProductName)
	require.Equal(t, 2, stockErr.Available)
	require.Equal(t, 3, stockErr.Requested)

	// The whole transaction rolled back: stock, orders and payments untouched
	require.Equal(t, 5, currentStock(t, db, cow.ID))
	require.Equal(t, 2, currentStock(t, db, buffalo.ID))

	var orderCount, paymentCount int64
	require.NoError(t, db.Model(&Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&payment.Payment{}).Count(&paymentCount).Error)
	require.Zero(t, orderCount)
	require.Zero(t, paymentCount)

	// And the cart was not cleared
	var lines int64
	require.NoError(t, db.Model(&cart.CartItem{}).Where("user_id = ?", buyer.ID).Count(&lines).Error)
	require.Equal(t, int64(2), lines)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)

	_, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrderHomeDeliveryFallsBackToDefaultAddress(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	require.NoError(t, db.Create(&user.Address{
		UserID:       buyer.ID,
		AddressLine1: "7 Meadow Road",
		City:         "Erode",
		IsDefault:    true,
	}).Error)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	addCartLine(t, db, buyer.ID, cow.ID, 1, 3000)

	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypeHome})
	require.NoError(t, err)
	require.Contains(t, resp.Order.DeliveryAddress, "7 Meadow Road")
	require.Equal(t, "9876543210", resp.Order.Phone)
}

func TestCreateOrderHomeDeliveryWithoutAnyAddress(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	addCartLine(t, db, buyer.ID, cow.ID, 1, 3000)

	_, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypeHome})
	require.ErrorIs(t, err, ErrMissingAddress)
}

func activateMonthlySubscription(t *testing.T, db *gorm.DB, userID, productID uint) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, db.Create(&subscription.Subscription{
		UserID:           userID,
		ProductID:        productID,
		PlanType:         subscription.PlanMonthly,
		PlanDuration:     subscription.MonthlyPlanDays,
		Quantity:         1,
		Price:            90000,
		StartDate:        now.AddDate(0, 0, -5),
		EndDate:          now.AddDate(0, 0, 25),
		NextDeliveryDate: now.AddDate(0, 0, 1),
		Status:           subscription.StatusActive,
	}).Error)
}

func TestFreeMilkPerkAppliedOncePerMonth(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 20)
	buffalo := seedProduct(t, db, "BUF-FULL-1L", product.MilkTypeBuffalo, 5000, 4400, 20)
	activateMonthlySubscription(t, db, buyer.ID, cow.ID)

	// First order this month carries the zero-priced perk line
	addCartLine(t, db, buyer.ID, buffalo.ID, 1, 5000)
	first, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.NoError(t, err)
	require.True(t, first.Order.FreeMilkAdded)
	require.Len(t, first.Order.Items, 2)

	var freeLine *OrderItem
	for i := range first.Order.Items {
		if first.Order.Items[i].IsFree {
			freeLine = &first.Order.Items[i]
		}
	}
	require.NotNil(t, freeLine)
	require.Equal(t, cow.ID, freeLine.ProductID)
	require.Equal(t, 2, freeLine.Quantity)
	require.Zero(t, freeLine.Price)
	require.Zero(t, freeLine.TotalPrice)

	// Free units still consume stock
	require.Equal(t, 18, currentStock(t, db, cow.ID))
	// But never the total
	require.Equal(t, int64(5000), first.Order.TotalAmount)

	// Second order in the same month gets no perk
	addCartLine(t, db, buyer.ID, buffalo.ID, 1, 5000)
	second, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.NoError(t, err)
	require.False(t, second.Order.FreeMilkAdded)
	require.Len(t, second.Order.Items, 1)
	require.Equal(t, 18, currentStock(t, db, cow.ID))
}

func TestFreeMilkPerkRequiresMonthlyPlan(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 20)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&subscription.Subscription{
		UserID:           buyer.ID,
		ProductID:        cow.ID,
		PlanType:         subscription.PlanWeekly,
		PlanDuration:     7,
		Quantity:         1,
		Price:            21000,
		StartDate:        now,
		EndDate:          now.AddDate(0, 0, 7),
		NextDeliveryDate: now,
		Status:           subscription.StatusActive,
	}).Error)

	addCartLine(t, db, buyer.ID, cow.ID, 1, 3000)
	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.NoError(t, err)
	require.False(t, resp.Order.FreeMilkAdded)
	require.Len(t, resp.Order.Items, 1)
}

func TestFreeMilkPerkSkippedWhenStockShort(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 1)
	buffalo := seedProduct(t, db, "BUF-FULL-1L", product.MilkTypeBuffalo, 5000, 4400, 10)
	activateMonthlySubscription(t, db, buyer.ID, cow.ID)

	// Cow milk has one unit left, not enough for the two free units.
	// The order still succeeds, just without the perk.
	addCartLine(t, db, buyer.ID, buffalo.ID, 1, 5000)
	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.NoError(t, err)
	require.False(t, resp.Order.FreeMilkAdded)
	require.Len(t, resp.Order.Items, 1)
	require.Equal(t, 1, currentStock(t, db, cow.ID))
}

func createTestOrder(t *testing.T, svc *Service, db *gorm.DB, buyer *user.User, prod *product.Product, quantity int) *Order {
	t.Helper()

	addCartLine(t, db, buyer.ID, prod.ID, quantity, prod.PriceB2C)
	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{
		DeliveryType:    DeliveryTypeHome,
		DeliveryAddress: "12 Dairy Lane",
	})
	require.NoError(t, err)
	return resp.Order
}

func TestCancelOrderRestoresStockAndCancelsPayment(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 2)
	require.Equal(t, 3, currentStock(t, db, cow.ID))

	cancelled, err := svc.CancelOrder(ord.ID, buyer.ID, user.RoleCustomer)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 5, currentStock(t, db, cow.ID))

	var pay payment.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	require.Equal(t, payment.StatusCancelled, pay.Status)

	// The restore is audited
	var movements []product.StockMovement
	require.NoError(t, db.Where("reference_id = ? AND reason = ?", ord.ID, product.ReasonCancel).
		Find(&movements).Error)
	require.Len(t, movements, 1)
	require.Equal(t, 2, movements[0].Quantity)
}

func TestCancelOrderIsNotRepeatable(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 2)

	_, err := svc.CancelOrder(ord.ID, buyer.ID, user.RoleCustomer)
	require.NoError(t, err)
	require.Equal(t, 5, currentStock(t, db, cow.ID))

	// A second cancellation must never restore stock twice
	_, err = svc.CancelOrder(ord.ID, buyer.ID, user.RoleCustomer)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	require.Equal(t, 5, currentStock(t, db, cow.ID))
}

func TestCancelOrderDeniedForStrangers(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	other := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	_, err := svc.CancelOrder(ord.ID, other.ID, user.RoleCustomer)
	require.ErrorIs(t, err, ErrNotOwner)

	// An admin may cancel anyone's order
	admin := seedUser(t, db, user.RoleAdmin, false)
	cancelled, err := svc.CancelOrder(ord.ID, admin.ID, user.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, cancelled.Status)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	admin := seedUser(t, db, user.RoleAdmin, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 2)

	for _, status := range []OrderStatus{OrderStatusConfirmed, OrderStatusProcessing, OrderStatusOutForDelivery, OrderStatusDelivered} {
		_, err := svc.UpdateStatus(ord.ID, status, admin.ID, user.RoleAdmin)
		require.NoError(t, err)
	}

	_, err := svc.CancelOrder(ord.ID, buyer.ID, user.RoleCustomer)
	require.ErrorIs(t, err, ErrTerminalState)
	require.Equal(t, 3, currentStock(t, db, cow.ID))
}

func TestCancelItemRecomputesTotals(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	buffalo := seedProduct(t, db, "BUF-FULL-1L", product.MilkTypeBuffalo, 5000, 4400, 5)
	addCartLine(t, db, buyer.ID, cow.ID, 2, 3000)
	addCartLine(t, db, buyer.ID, buffalo.ID, 1, 5000)

	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{
		DeliveryType:    DeliveryTypeHome,
		DeliveryAddress: "12 Dairy Lane",
	})
	require.NoError(t, err)
	ord := resp.Order
	require.Equal(t, int64(16000), ord.TotalAmount)

	var buffaloItem *OrderItem
	for i := range ord.Items {
		if ord.Items[i].ProductID == buffalo.ID {
			buffaloItem = &ord.Items[i]
		}
	}
	require.NotNil(t, buffaloItem)

	updated, err := svc.CancelItem(ord.ID, buffaloItem.ID, buyer.ID)
	require.NoError(t, err)

	// The order stays open with recomputed totals
	require.Equal(t, OrderStatusPending, updated.Status)
	require.Len(t, updated.Items, 1)
	require.Equal(t, int64(6000), updated.SubtotalAmount)
	require.Equal(t, int64(11000), updated.TotalAmount)

	// The cancelled line's stock comes back
	require.Equal(t, 5, currentStock(t, db, buffalo.ID))
	require.Equal(t, 3, currentStock(t, db, cow.ID))
}

func TestCancelLastItemCancelsOrder(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 2)
	require.Len(t, ord.Items, 1)

	updated, err := svc.CancelItem(ord.ID, ord.Items[0].ID, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, updated.Status)
	require.Empty(t, updated.Items)
	require.Equal(t, 5, currentStock(t, db, cow.ID))

	var pay payment.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	require.Equal(t, payment.StatusCancelled, pay.Status)
}

func TestCancelItemUnknownItem(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	_, err := svc.CancelItem(ord.ID, 99999, buyer.ID)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestUpdateStatusWalksTheLifecycle(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	admin := seedUser(t, db, user.RoleAdmin, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	updated, err := svc.UpdateStatus(ord.ID, OrderStatusConfirmed, admin.ID, user.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, updated.Status)

	updated, err = svc.UpdateStatus(ord.ID, OrderStatusProcessing, admin.ID, user.RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, updated.ProcessedAt)

	updated, err = svc.UpdateStatus(ord.ID, OrderStatusOutForDelivery, admin.ID, user.RoleAdmin)
	require.NoError(t, err)

	updated, err = svc.UpdateStatus(ord.ID, OrderStatusDelivered, admin.ID, user.RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)

	// Every hop leaves a history row (creation wrote the first one)
	var historyCount int64
	require.NoError(t, db.Model(&OrderStatusHistory{}).Where("order_id = ?", ord.ID).Count(&historyCount).Error)
	require.Equal(t, int64(5), historyCount)
}

func TestUpdateStatusRejectsIllegalEdge(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	admin := seedUser(t, db, user.RoleAdmin, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	_, err := svc.UpdateStatus(ord.ID, OrderStatusDelivered, admin.ID, user.RoleAdmin)
	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	require.Equal(t, OrderStatusPending, transitionErr.From)

	// The failed attempt changed nothing
	reloaded, err := svc.GetOrder(ord.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPending, reloaded.Status)
}

func TestUpdateStatusDeniedWithoutCapability(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	_, err := svc.UpdateStatus(ord.ID, OrderStatusConfirmed, buyer.ID, user.RoleCustomer)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestDeliveredOrderIsImmutable(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	admin := seedUser(t, db, user.RoleAdmin, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	for _, status := range []OrderStatus{OrderStatusConfirmed, OrderStatusProcessing, OrderStatusOutForDelivery, OrderStatusDelivered} {
		_, err := svc.UpdateStatus(ord.ID, status, admin.ID, user.RoleAdmin)
		require.NoError(t, err)
	}

	for _, status := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusOutForDelivery, OrderStatusCancelled} {
		_, err := svc.UpdateStatus(ord.ID, status, admin.ID, user.RoleAdmin)
		require.Error(t, err, "delivered order accepted move to %s", status)
	}

	_, err := svc.CancelItem(ord.ID, ord.Items[0].ID, buyer.ID)
	require.ErrorIs(t, err, ErrTerminalState)
}

func TestTakeOrder(t *testing.T) {
	t.Parallel()

	svc, db, publisher := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	agent := seedUser(t, db, user.RoleDelivery, false)
	rival := seedUser(t, db, user.RoleDelivery, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	taken, err := svc.TakeOrder(ord.ID, agent.ID, user.RoleDelivery)
	require.NoError(t, err)
	require.NotNil(t, taken.DeliveryBoyID)
	require.Equal(t, agent.ID, *taken.DeliveryBoyID)
	// First take-up starts fulfillment
	require.Equal(t, OrderStatusProcessing, taken.Status)
	require.NotNil(t, taken.ProcessedAt)
	require.Contains(t, publisher.kinds(), events.KindOrderAssigned)

	// Re-taking by the same agent is a no-op
	again, err := svc.TakeOrder(ord.ID, agent.ID, user.RoleDelivery)
	require.NoError(t, err)
	require.Equal(t, OrderStatusProcessing, again.Status)

	// A different agent is refused
	_, err = svc.TakeOrder(ord.ID, rival.ID, user.RoleDelivery)
	require.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestTakeOrderRejectsPickupOrders(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	agent := seedUser(t, db, user.RoleDelivery, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	addCartLine(t, db, buyer.ID, cow.ID, 1, 3000)
	resp, err := svc.CreateOrder(buyer.ID, "", &CreateOrderRequest{DeliveryType: DeliveryTypePickup})
	require.NoError(t, err)

	_, err = svc.TakeOrder(resp.Order.ID, agent.ID, user.RoleDelivery)
	require.ErrorIs(t, err, ErrNotHomeDelivery)
}

func TestTakeOrderDeniedForCustomers(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	_, err := svc.TakeOrder(ord.ID, buyer.ID, user.RoleCustomer)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestAssignDeliveryValidatesAgentRole(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	agent := seedUser(t, db, user.RoleDelivery, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	// A customer cannot be assigned as the delivery actor
	_, err := svc.AssignDelivery(ord.ID, buyer.ID, user.RoleAdmin)
	require.Error(t, err)

	assigned, err := svc.AssignDelivery(ord.ID, agent.ID, user.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, agent.ID, *assigned.DeliveryBoyID)

	// Mediators may reassign, overwriting the current assignee
	rival := seedUser(t, db, user.RoleDelivery, false)
	reassigned, err := svc.AssignDelivery(ord.ID, rival.ID, user.RoleMediator)
	require.NoError(t, err)
	require.Equal(t, rival.ID, *reassigned.DeliveryBoyID)

	// Delivery agents may not assign
	_, err = svc.AssignDelivery(ord.ID, agent.ID, user.RoleDelivery)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestConfirmPayment(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	confirmed, err := svc.ConfirmPayment(ord.ID, "pay_abc123")
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, confirmed.Status)

	var pay payment.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	require.Equal(t, payment.StatusSucceeded, pay.Status)
	require.Equal(t, "pay_abc123", pay.TransactionID)
	require.NotNil(t, pay.ProcessedAt)

	// A duplicate gateway callback is rejected by the transition table
	_, err = svc.ConfirmPayment(ord.ID, "pay_abc123")
	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
}

func TestMarkPaymentFailed(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	require.NoError(t, svc.MarkPaymentFailed(ord.ID))

	var pay payment.Payment
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&pay).Error)
	require.Equal(t, payment.StatusFailed, pay.Status)

	// The order itself stays pending so payment can be retried
	reloaded, err := svc.GetOrder(ord.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPending, reloaded.Status)
}

func TestDeleteOrderOnlyWhenCancelled(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 5)
	ord := createTestOrder(t, svc, db, buyer, cow, 1)

	require.ErrorIs(t, svc.DeleteOrder(ord.ID, buyer.ID), ErrNotCancelledState)

	_, err := svc.CancelOrder(ord.ID, buyer.ID, user.RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ord.ID, buyer.ID))

	_, err = svc.GetOrder(ord.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)

	var paymentCount int64
	require.NoError(t, db.Unscoped().Model(&payment.Payment{}).Where("order_id = ?", ord.ID).Count(&paymentCount).Error)
	require.Zero(t, paymentCount)
}

func TestGetDeliveryOrdersVisibility(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	agent := seedUser(t, db, user.RoleDelivery, false)
	rival := seedUser(t, db, user.RoleDelivery, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 50)

	unassigned := createTestOrder(t, svc, db, buyer, cow, 1)
	mine := createTestOrder(t, svc, db, buyer, cow, 1)
	theirs := createTestOrder(t, svc, db, buyer, cow, 1)

	_, err := svc.TakeOrder(mine.ID, agent.ID, user.RoleDelivery)
	require.NoError(t, err)
	_, err = svc.TakeOrder(theirs.ID, rival.ID, user.RoleDelivery)
	require.NoError(t, err)

	list, err := svc.GetDeliveryOrders(agent.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)

	ids := map[uint]bool{}
	for _, o := range list.Orders {
		ids[o.ID] = true
	}
	require.True(t, ids[unassigned.ID])
	require.True(t, ids[mine.ID])
	require.False(t, ids[theirs.ID])
}

func TestStockConservationAcrossLifecycle(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 10)

	// Create and cancel several orders; stock must always return to 10
	for i := 0; i < 3; i++ {
		ord := createTestOrder(t, svc, db, buyer, cow, 3)
		require.Equal(t, 7, currentStock(t, db, cow.ID))
		_, err := svc.CancelOrder(ord.ID, buyer.ID, user.RoleCustomer)
		require.NoError(t, err)
		require.Equal(t, 10, currentStock(t, db, cow.ID))
	}

	// The movement ledger sums to zero
	var movements []product.StockMovement
	require.NoError(t, db.Where("product_id = ?", cow.ID).Find(&movements).Error)
	var sum int
	for _, m := range movements {
		sum += m.Quantity
	}
	require.Zero(t, sum)
}

func TestOrderNumbersAreUnique(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t)
	buyer := seedUser(t, db, user.RoleCustomer, false)
	cow := seedProduct(t, db, "COW-FULL-1L", product.MilkTypeCow, 3000, 2600, 50)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ord := createTestOrder(t, svc, db, buyer, cow, 1)
		require.NotEmpty(t, ord.OrderNumber)
		require.False(t, seen[ord.OrderNumber], "duplicate order number %s", ord.OrderNumber)
		seen[ord.OrderNumber] = true
	}
}
