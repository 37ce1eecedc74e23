// internal/domain/subscription/entity.go
package subscription

import (
	"time"

	"gorm.io/gorm"
)

// PlanType represents a recurring-delivery plan
type PlanType string

const (
	PlanWeekly    PlanType = "weekly"
	PlanBiweekly  PlanType = "biweekly"
	PlanMonthly   PlanType = "monthly"
	PlanQuarterly PlanType = "quarterly"
)

// PlanDurations maps each plan to its length in days
var PlanDurations = map[PlanType]int{
	PlanWeekly:    7,
	PlanBiweekly:  15,
	PlanMonthly:   30,
	PlanQuarterly: 90,
}

// MonthlyPlanDays is the plan length that earns the free-milk order perk
const MonthlyPlanDays = 30

// Status represents the subscription lifecycle
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Subscription represents a recurring-delivery record. The whole term is
// priced up front: unit tier price * quantity * duration days.
type Subscription struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	ProductID        uint           `gorm:"not null;index" json:"product_id"`
	PlanType         PlanType       `gorm:"not null;size:20" json:"plan_type"`
	PlanDuration     int            `gorm:"not null" json:"plan_duration"` // In days
	Quantity         int            `gorm:"not null;default:1" json:"quantity"`
	Price            int64          `gorm:"not null" json:"price"` // Whole term, in paise
	StartDate        time.Time      `gorm:"not null" json:"start_date"`
	EndDate          time.Time      `gorm:"not null" json:"end_date"`
	NextDeliveryDate time.Time      `gorm:"not null;index" json:"next_delivery_date"`
	Status           Status         `gorm:"not null;default:'active';index" json:"status"`
	AutoRenew        bool           `gorm:"default:false" json:"auto_renew"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether the subscription is currently active
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// HasExpired reports whether the term ended before now
func (s *Subscription) HasExpired(now time.Time) bool {
	return now.After(s.EndDate)
}
