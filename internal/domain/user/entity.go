// internal/domain/user/entity.go
package user

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role represents the actor type of a user
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleMediator Role = "mediator"
	RoleDelivery Role = "delivery"
)

// Capability represents a single action a role may perform
type Capability string

const (
	CapManageCatalog    Capability = "manage_catalog"
	CapUpdateOrderState Capability = "update_order_state"
	CapAssignDelivery   Capability = "assign_delivery"
	CapTakeOrder        Capability = "take_order"
	CapCancelAnyOrder   Capability = "cancel_any_order"
	CapManageFranchise  Capability = "manage_franchise"
	CapViewAnalytics    Capability = "view_analytics"
)

// roleCapabilities is the single source of truth for role gating.
// Route handlers and services check capabilities here instead of
// comparing role strings inline.
var roleCapabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageCatalog:    true,
		CapUpdateOrderState: true,
		CapAssignDelivery:   true,
		CapCancelAnyOrder:   true,
		CapManageFranchise:  true,
		CapViewAnalytics:    true,
	},
	RoleMediator: {
		CapUpdateOrderState: true,
		CapAssignDelivery:   true,
		CapCancelAnyOrder:   true,
		CapViewAnalytics:    true,
	},
	RoleDelivery: {
		CapUpdateOrderState: true,
		CapTakeOrder:        true,
	},
	RoleCustomer: {},
}

// Can reports whether the role holds the given capability
func (r Role) Can(c Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	return caps[c]
}

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// User represents the user entity
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Email         string         `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password      string         `gorm:"not null;size:255" json:"-"` // Don't return in JSON
	FirstName     string         `gorm:"size:100" json:"first_name"`
	LastName      string         `gorm:"size:100" json:"last_name"`
	Phone         string         `gorm:"size:20" json:"phone"`
	Role          Role           `gorm:"not null;default:'customer';size:20" json:"role"`
	IsB2B         bool           `gorm:"default:false" json:"is_b2b"` // Business buyers get the B2B price tier
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	EmailVerified bool           `gorm:"default:false" json:"email_verified"`
	LastLoginAt   *time.Time     `json:"last_login_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Addresses []Address `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"addresses,omitempty"`
}

// Address represents user delivery addresses
type Address struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	Label        string    `gorm:"size:50;default:'home'" json:"label"`
	AddressLine1 string    `gorm:"size:255;not null" json:"address_line1"`
	AddressLine2 string    `gorm:"size:255" json:"address_line2"`
	City         string    `gorm:"size:100;not null" json:"city"`
	State        string    `gorm:"size:100" json:"state"`
	PostalCode   string    `gorm:"size:20" json:"postal_code"`
	IsDefault    bool      `gorm:"default:false" json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// TableName overrides the table name for Address
func (Address) TableName() string {
	return "addresses"
}

// BeforeCreate hook to handle business logic before user creation
func (u *User) BeforeCreate(tx *gorm.DB) error {
	// Email should be lowercase
	u.Email = strings.ToLower(u.Email)
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	return nil
}

// GetFullName returns the user's full name
func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// GetDisplayName returns display name (full name or email)
func (u *User) GetDisplayName() string {
	fullName := u.GetFullName()
	if fullName != "" {
		return fullName
	}
	return u.Email
}

// Oneline returns a compact summary used in event payloads
func (u *User) Oneline() map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"name":  u.GetDisplayName(),
		"email": u.Email,
		"phone": u.Phone,
	}
}
