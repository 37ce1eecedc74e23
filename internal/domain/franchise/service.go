// internal/domain/franchise/service.go
package franchise

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/gorm"
)

var (
	ErrApplicationNotFound = errors.New("franchise application not found")
	ErrAlreadyApplied      = errors.New("user already has a franchise application")
	ErrAlreadyDecided      = errors.New("franchise application has already been reviewed")
	ErrNotApproved         = errors.New("franchise is not in approved state")
	ErrNotAuthorized       = errors.New("not authorized to manage franchises")
)

// contractTerm is the initial contract length granted on approval
const contractTerm = 365 * 24 * time.Hour

// Service manages franchise applications and contracts
type Service struct {
	db        *gorm.DB
	publisher events.Publisher
	log       *logrus.Logger
}

// NewService creates a new franchise service
func NewService(db *gorm.DB, publisher events.Publisher, log *logrus.Logger) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		log:       log,
	}
}

// ApplyRequest represents a franchise application
type ApplyRequest struct {
	BusinessName       string `json:"business_name" binding:"required"`
	OwnerName          string `json:"owner_name" binding:"required"`
	Phone              string `json:"phone" binding:"required"`
	Email              string `json:"email" binding:"omitempty,email"`
	Address            string `json:"address" binding:"required"`
	City               string `json:"city" binding:"required"`
	State              string `json:"state"`
	PostalCode         string `json:"postal_code"`
	InvestmentCapacity int64  `json:"investment_capacity" binding:"min=0"`
	Notes              string `json:"notes"`
}

// Apply files a franchise application for the user. One per user,
// regardless of the existing application's outcome.
func (s *Service) Apply(userID uint, req *ApplyRequest) (*Franchise, error) {
	var existing Franchise
	err := s.db.Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyApplied
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing application: %w", err)
	}

	app := &Franchise{
		UserID:             userID,
		Status:             StatusPending,
		BusinessName:       req.BusinessName,
		OwnerName:          req.OwnerName,
		Phone:              req.Phone,
		Email:              req.Email,
		Address:            req.Address,
		City:               req.City,
		State:              req.State,
		PostalCode:         req.PostalCode,
		InvestmentCapacity: req.InvestmentCapacity,
		Notes:              req.Notes,
	}
	if err := s.db.Create(app).Error; err != nil {
		return nil, fmt.Errorf("failed to create franchise application: %w", err)
	}

	s.publishAdmin(events.Event{
		Kind: events.KindNotification,
		Payload: map[string]interface{}{
			"type":    "franchise_application",
			"title":   "New franchise application",
			"message": fmt.Sprintf("%s applied for a franchise in %s", req.BusinessName, req.City),
			"data":    map[string]interface{}{"franchise_id": app.ID},
		},
	})

	return app, nil
}

// Get retrieves an application by ID
func (s *Service) Get(id uint) (*Franchise, error) {
	var app Franchise
	if err := s.db.First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to retrieve application: %w", err)
	}
	return &app, nil
}

// GetByUser retrieves the user's own application
func (s *Service) GetByUser(userID uint) (*Franchise, error) {
	var app Franchise
	if err := s.db.Where("user_id = ?", userID).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to retrieve application: %w", err)
	}
	return &app, nil
}

// List retrieves applications, optionally filtered by status
func (s *Service) List(status Status, page, limit int) ([]Franchise, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var apps []Franchise
	var total int64

	query := s.db.Model(&Franchise{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&apps).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve applications: %w", err)
	}
	return apps, total, nil
}

// Approve moves a pending application to approved and grants the
// initial one-year contract.
func (s *Service) Approve(id uint, reviewerID uint, reviewerRole user.Role) (*Franchise, error) {
	if !reviewerRole.Can(user.CapManageFranchise) {
		return nil, ErrNotAuthorized
	}

	app, err := s.decide(id, reviewerID, StatusApproved, "")
	if err != nil {
		return nil, err
	}

	s.notifyApplicant(app, "franchise_approved", "Franchise approved",
		"Your franchise application has been approved")
	return app, nil
}

// Reject moves a pending application to rejected with a reason
func (s *Service) Reject(id uint, reviewerID uint, reviewerRole user.Role, reason string) (*Franchise, error) {
	if !reviewerRole.Can(user.CapManageFranchise) {
		return nil, ErrNotAuthorized
	}

	app, err := s.decide(id, reviewerID, StatusRejected, reason)
	if err != nil {
		return nil, err
	}

	s.notifyApplicant(app, "franchise_rejected", "Franchise application update",
		"Your franchise application was not approved")
	return app, nil
}

// Activate moves an approved franchise to active once onboarding is done
func (s *Service) Activate(id uint, reviewerRole user.Role) (*Franchise, error) {
	if !reviewerRole.Can(user.CapManageFranchise) {
		return nil, ErrNotAuthorized
	}

	app, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusApproved {
		return nil, ErrNotApproved
	}

	if err := s.db.Model(app).Update("status", StatusActive).Error; err != nil {
		return nil, fmt.Errorf("failed to activate franchise: %w", err)
	}
	app.Status = StatusActive

	s.notifyApplicant(app, "franchise_active", "Franchise activated",
		"Your franchise is now active")
	return app, nil
}

// decide applies the pending -> approved|rejected transition. The review
// is one-shot: a decided application never changes outcome here.
func (s *Service) decide(id uint, reviewerID uint, status Status, reason string) (*Franchise, error) {
	var app Franchise

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&app, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrApplicationNotFound
			}
			return fmt.Errorf("failed to load application: %w", err)
		}
		if app.IsDecided() {
			return ErrAlreadyDecided
		}

		updates := map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewerID,
		}
		if status == StatusApproved {
			start := time.Now().UTC()
			end := start.Add(contractTerm)
			updates["contract_start"] = start
			updates["contract_end"] = end
			app.ContractStart = &start
			app.ContractEnd = &end
		}
		if reason != "" {
			updates["rejection_reason"] = reason
			app.RejectionReason = reason
		}

		if err := tx.Model(&app).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update application: %w", err)
		}
		app.Status = status
		app.ReviewedBy = &reviewerID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *Service) notifyApplicant(app *Franchise, notifType, title, message string) {
	if s.publisher == nil {
		return
	}
	event := events.Event{
		Kind: events.KindNotification,
		Payload: map[string]interface{}{
			"type":    notifType,
			"title":   title,
			"message": message,
			"data":    map[string]interface{}{"franchise_id": app.ID},
		},
	}
	if err := events.PublishAll(context.Background(), s.publisher, event, events.TopicUser(app.UserID)); err != nil {
		s.log.WithError(err).WithField("franchise_id", app.ID).Warn("event publish failed")
	}
}

func (s *Service) publishAdmin(event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := events.PublishAll(context.Background(), s.publisher, event, events.TopicAdmin); err != nil {
		s.log.WithError(err).Warn("event publish failed")
	}
}
