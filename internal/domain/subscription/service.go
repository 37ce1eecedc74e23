// internal/domain/subscription/service.go
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNotOwner             = errors.New("subscription belongs to another user")
	ErrAlreadyCancelled     = errors.New("subscription is already cancelled")
	ErrNotActive            = errors.New("subscription is not active")
)

// Service manages milk delivery subscriptions
type Service struct {
	db        *gorm.DB
	publisher events.Publisher
	log       *logrus.Logger
}

// NewService creates a new subscription service
func NewService(db *gorm.DB, publisher events.Publisher, log *logrus.Logger) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		log:       log,
	}
}

// CreateSubscriptionRequest represents subscription creation data
type CreateSubscriptionRequest struct {
	ProductID uint     `json:"product_id" binding:"required"`
	PlanType  PlanType `json:"plan_type" binding:"required,oneof=weekly biweekly monthly quarterly"`
	Quantity  int      `json:"quantity" binding:"required,min=1"`
	AutoRenew bool     `json:"auto_renew"`
	StartDate string   `json:"start_date,omitempty"` // YYYY-MM-DD, defaults to now
}

// CreateSubscriptionResponse bundles the subscription with its pending payment
type CreateSubscriptionResponse struct {
	Subscription *Subscription    `json:"subscription"`
	Payment      *payment.Payment `json:"payment"`
}

// Create starts a subscription for the given user. The full term is
// priced up front: per-unit tier price x quantity x plan days, captured
// as a pending payment in the same transaction.
func (s *Service) Create(userID uint, req *CreateSubscriptionRequest) (*CreateSubscriptionResponse, error) {
	var owner user.User
	if err := s.db.First(&owner, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	duration, ok := PlanDurations[req.PlanType]
	if !ok {
		return nil, fmt.Errorf("invalid plan type: %s", req.PlanType)
	}

	var prod product.Product
	if err := s.db.First(&prod, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product not found")
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if !prod.IsActive {
		return nil, fmt.Errorf("product '%s' is no longer available", prod.Name)
	}

	startDate := time.Now().UTC()
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date, expected YYYY-MM-DD: %w", err)
		}
		startDate = parsed.UTC()
	}

	unitPrice := prod.PriceFor(owner.IsB2B)
	termPrice := unitPrice * int64(req.Quantity) * int64(duration)

	sub := Subscription{
		UserID:           userID,
		ProductID:        req.ProductID,
		PlanType:         req.PlanType,
		PlanDuration:     duration,
		Quantity:         req.Quantity,
		Price:            termPrice,
		StartDate:        startDate,
		EndDate:          startDate.AddDate(0, 0, duration),
		NextDeliveryDate: startDate.AddDate(0, 0, 1),
		Status:           StatusActive,
		AutoRenew:        req.AutoRenew,
	}
	var pay payment.Payment

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}

		subID := sub.ID
		pay = payment.Payment{
			SubscriptionID: &subID,
			UserID:         userID,
			Amount:         termPrice,
			Method:         payment.MethodRazorpay,
			Status:         payment.StatusPending,
		}
		if err := tx.Create(&pay).Error; err != nil {
			return fmt.Errorf("failed to create payment record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyUser(userID, "subscription_created", "Subscription started",
		fmt.Sprintf("Your %s subscription for %s is active", req.PlanType, prod.Name),
		map[string]interface{}{"subscription_id": sub.ID})

	return &CreateSubscriptionResponse{Subscription: &sub, Payment: &pay}, nil
}

// Get retrieves a subscription by ID
func (s *Service) Get(id uint) (*Subscription, error) {
	var sub Subscription
	if err := s.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	return &sub, nil
}

// GetUserSubscriptions lists a user's subscriptions, newest first
func (s *Service) GetUserSubscriptions(userID uint) ([]Subscription, error) {
	var subs []Subscription
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve subscriptions: %w", err)
	}
	return subs, nil
}

// Cancel terminates a subscription. Only the owner may cancel, and
// cancellation is irreversible.
func (s *Service) Cancel(id uint, userID uint) (*Subscription, error) {
	var sub Subscription
	if err := s.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}

	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	if sub.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	if err := s.db.Model(&sub).Updates(map[string]interface{}{
		"status":     StatusCancelled,
		"auto_renew": false,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	sub.Status = StatusCancelled
	sub.AutoRenew = false

	s.notifyUser(userID, "subscription_cancelled", "Subscription cancelled",
		"Your subscription has been cancelled",
		map[string]interface{}{"subscription_id": sub.ID})

	return &sub, nil
}

// UpdateStatus lets an admin set a subscription status directly
func (s *Service) UpdateStatus(id uint, status Status, actorRole user.Role) (*Subscription, error) {
	if !actorRole.Can(user.CapManageCatalog) {
		return nil, ErrNotOwner
	}
	if status != StatusActive && status != StatusExpired && status != StatusCancelled {
		return nil, fmt.Errorf("invalid subscription status: %s", status)
	}

	var sub Subscription
	if err := s.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}

	updates := map[string]interface{}{"status": status}
	if status == StatusCancelled {
		// Cancellation always stops renewal, whoever triggers it
		updates["auto_renew"] = false
	}
	if err := s.db.Model(&sub).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}
	sub.Status = status
	if status == StatusCancelled {
		sub.AutoRenew = false
	}
	return &sub, nil
}

// ConfirmPayment settles the pending payment for a subscription
func (s *Service) ConfirmPayment(subscriptionID uint, transactionID string) error {
	now := time.Now().UTC()
	result := s.db.Model(&payment.Payment{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"status":         payment.StatusSucceeded,
			"transaction_id": transactionID,
			"processed_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment record not found for subscription %d", subscriptionID)
	}
	return nil
}

func (s *Service) notifyUser(userID uint, notifType, title, message string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	event := events.Event{
		Kind: events.KindNotification,
		Payload: map[string]interface{}{
			"type":    notifType,
			"title":   title,
			"message": message,
			"data":    data,
		},
	}
	if err := events.PublishAll(context.Background(), s.publisher, event, events.TopicUser(userID)); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("event publish failed")
	}
}
