// internal/domain/franchise/entity.go
package franchise

import (
	"time"

	"gorm.io/gorm"
)

// Status represents the franchise application lifecycle
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusActive   Status = "active"
)

// Franchise represents a franchise application and, once approved, the
// running franchise itself. One per user.
type Franchise struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	Status Status `gorm:"not null;default:'pending';size:20" json:"status"`

	BusinessName string `gorm:"size:255;not null" json:"business_name"`
	OwnerName    string `gorm:"size:255;not null" json:"owner_name"`
	Phone        string `gorm:"size:20;not null" json:"phone"`
	Email        string `gorm:"size:255" json:"email"`
	Address      string `gorm:"size:500;not null" json:"address"`
	City         string `gorm:"size:100;not null" json:"city"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code"`

	InvestmentCapacity int64  `json:"investment_capacity"` // Smallest currency unit
	Notes              string `gorm:"size:1000" json:"notes,omitempty"`
	RejectionReason    string `gorm:"size:500" json:"rejection_reason,omitempty"`

	ContractStart *time.Time `json:"contract_start,omitempty"`
	ContractEnd   *time.Time `json:"contract_end,omitempty"`
	ReviewedBy    *uint      `json:"reviewed_by,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Franchise) TableName() string {
	return "franchises"
}

// IsDecided reports whether the application has been reviewed
func (f *Franchise) IsDecided() bool {
	return f.Status != StatusPending
}

// ContractValid reports whether the franchise contract covers the given time
func (f *Franchise) ContractValid(at time.Time) bool {
	if f.ContractStart == nil || f.ContractEnd == nil {
		return false
	}
	return !at.Before(*f.ContractStart) && at.Before(*f.ContractEnd)
}
