// internal/domain/subscription/service_test.go
package subscription

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) notificationTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.published {
		if e.Kind != events.KindNotification {
			continue
		}
		if t, ok := e.Payload["type"].(string); ok {
			types = append(types, t)
		}
	}
	return types
}

func newTestDB(t *testing.T) *gorm.DB {
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
		&product.Product{},
		&Subscription{},
		&payment.Payment{},
	))
	return db
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var emailSeq int64

func seedUser(t *testing.T, db *gorm.DB, isB2B bool) *user.User {
	t.Helper()

	u := &user.User{
		Email:    fmt.Sprintf("sub%d@example.com", atomic.AddInt64(&emailSeq, 1)),
		Password: "hashed",
		Role:     user.RoleCustomer,
		IsB2B:    isB2B,
		IsActive: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedProduct(t *testing.T, db *gorm.DB) *product.Product {
	t.Helper()

	p := &product.Product{
		SKU:      fmt.Sprintf("COW-FULL-1L-%d", atomic.AddInt64(&emailSeq, 1)),
		Name:     "Cow Milk Full Cream",
		Type:     product.MilkTypeCow,
		PriceB2C: 6000,
		PriceB2B: 5200,
		Stock:    100,
		IsActive: true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestCreateSubscriptionPricesWholeTerm(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	publisher := &recordingPublisher{}
	svc := NewService(db, publisher, quietLogger())
	buyer := seedUser(t, db, false)
	prod := seedProduct(t, db)

	resp, err := svc.Create(buyer.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  2,
		StartDate: "2026-09-01",
	})
	require.NoError(t, err)

	sub := resp.Subscription
	require.Equal(t, StatusActive, sub.Status)
	require.Equal(t, 30, sub.PlanDuration)
	// 6000 paise x 2 units x 30 days
	require.Equal(t, int64(360000), sub.Price)
	require.Equal(t, "2026-09-01", sub.StartDate.Format("2006-01-02"))
	require.Equal(t, "2026-10-01", sub.EndDate.Format("2006-01-02"))
	// First delivery the day after the term starts
	require.Equal(t, "2026-09-02", sub.NextDeliveryDate.Format("2006-01-02"))

	// The pending payment covers the whole term
	require.NotNil(t, resp.Payment)
	require.Equal(t, payment.StatusPending, resp.Payment.Status)
	require.Equal(t, sub.Price, resp.Payment.Amount)
	require.Equal(t, sub.ID, *resp.Payment.SubscriptionID)

	require.Contains(t, publisher.notificationTypes(), "subscription_created")
}

func TestCreateSubscriptionStartsImmediatelyByDefault(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	buyer := seedUser(t, db, false)
	prod := seedProduct(t, db)

	resp, err := svc.Create(buyer.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  1,
	})
	require.NoError(t, err)

	sub := resp.Subscription
	now := time.Now().UTC()
	require.WithinDuration(t, now, sub.StartDate, time.Minute)
	require.WithinDuration(t, now.AddDate(0, 0, 30), sub.EndDate, time.Minute)
	require.WithinDuration(t, now.AddDate(0, 0, 1), sub.NextDeliveryDate, time.Minute)
}

func TestCreateSubscriptionUsesB2BTier(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	buyer := seedUser(t, db, true)
	prod := seedProduct(t, db)

	resp, err := svc.Create(buyer.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanWeekly,
		Quantity:  1,
	})
	require.NoError(t, err)
	// 5200 paise x 1 unit x 7 days
	require.Equal(t, int64(36400), resp.Subscription.Price)
}

func TestCreateSubscriptionRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	buyer := seedUser(t, db, false)
	prod := seedProduct(t, db)
	require.NoError(t, db.Model(prod).Update("is_active", false).Error)

	_, err := svc.Create(buyer.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  1,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no longer available")
}

func TestCreateSubscriptionRejectsBadStartDate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	buyer := seedUser(t, db, false)
	prod := seedProduct(t, db)

	_, err := svc.Create(buyer.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  1,
		StartDate: "01-09-2026",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid start date")
}

func TestCancelSubscriptionOwnerOnly(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	owner := seedUser(t, db, false)
	stranger := seedUser(t, db, false)
	prod := seedProduct(t, db)

	resp, err := svc.Create(owner.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  1,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(resp.Subscription.ID, stranger.ID)
	require.ErrorIs(t, err, ErrNotOwner)

	cancelled, err := svc.Cancel(resp.Subscription.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	// Cancellation is one-way
	_, err = svc.Cancel(resp.Subscription.ID, owner.ID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancellationStopsRenewal(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	owner := seedUser(t, db, false)
	prod := seedProduct(t, db)

	resp, err := svc.Create(owner.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  1,
		AutoRenew: true,
	})
	require.NoError(t, err)
	require.True(t, resp.Subscription.AutoRenew)

	cancelled, err := svc.Cancel(resp.Subscription.ID, owner.ID)
	require.NoError(t, err)
	require.False(t, cancelled.AutoRenew)

	var stored Subscription
	require.NoError(t, db.First(&stored, resp.Subscription.ID).Error)
	require.Equal(t, StatusCancelled, stored.Status)
	require.False(t, stored.AutoRenew)

	// Admin cancellation via UpdateStatus stops renewal too
	second, err := svc.Create(owner.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanWeekly,
		Quantity:  1,
		AutoRenew: true,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(second.Subscription.ID, StatusCancelled, user.RoleAdmin)
	require.NoError(t, err)
	require.False(t, updated.AutoRenew)

	var storedSecond Subscription
	require.NoError(t, db.First(&storedSecond, second.Subscription.ID).Error)
	require.Equal(t, StatusCancelled, storedSecond.Status)
	require.False(t, storedSecond.AutoRenew)
}

func TestUpdateStatusRequiresCapability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	owner := seedUser(t, db, false)
	prod := seedProduct(t, db)

	resp, err := svc.Create(owner.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanMonthly,
		Quantity:  1,
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(resp.Subscription.ID, StatusExpired, user.RoleCustomer)
	require.ErrorIs(t, err, ErrNotOwner)

	updated, err := svc.UpdateStatus(resp.Subscription.ID, StatusExpired, user.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, updated.Status)
}

func TestConfirmPaymentSettlesPendingPayment(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(db, nil, quietLogger())
	owner := seedUser(t, db, false)
	prod := seedProduct(t, db)

	resp, err := svc.Create(owner.ID, &CreateSubscriptionRequest{
		ProductID: prod.ID,
		PlanType:  PlanQuarterly,
		Quantity:  1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmPayment(resp.Subscription.ID, "pay_sub_42"))

	var pay payment.Payment
	require.NoError(t, db.Where("subscription_id = ?", resp.Subscription.ID).First(&pay).Error)
	require.Equal(t, payment.StatusSucceeded, pay.Status)
	require.Equal(t, "pay_sub_42", pay.TransactionID)

	require.Error(t, svc.ConfirmPayment(99999, "pay_missing"))
}
