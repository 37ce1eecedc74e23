// internal/domain/user/service.go
package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// PasswordHasher abstracts password hashing so the service does not
// depend on the auth package directly.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) error
}

// Service handles user account business logic
type Service struct {
	db     *gorm.DB
	hasher PasswordHasher
}

// NewService creates a new user service
func NewService(db *gorm.DB, hasher PasswordHasher) *Service {
	return &Service{
		db:     db,
		hasher: hasher,
	}
}

// RegisterRequest represents user registration data
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	IsB2B     bool   `json:"is_b2b"`
}

// UpdateProfileRequest represents profile update data
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

// Register creates a new customer account
func (s *Service) Register(req *RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:     email,
		Password:  hash,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      RoleCustomer,
		IsB2B:     req.IsB2B,
		IsActive:  true,
	}
	if err := s.db.Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// Authenticate verifies credentials and records the login time
func (s *Service) Authenticate(email, password string) (*User, error) {
	var u User
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.hasher.VerifyPassword(password, u.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}

	now := time.Now().UTC()
	if err := s.db.Model(&u).Update("last_login_at", now).Error; err == nil {
		u.LastLoginAt = &now
	}

	return &u, nil
}

// GetByID retrieves a user with their addresses
func (s *Service) GetByID(id uint) (*User, error) {
	var u User
	if err := s.db.Preload("Addresses").First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return &u, nil
}

// UpdateProfile applies a partial update to the user's own fields
func (s *Service) UpdateProfile(id uint, req *UpdateProfileRequest) (*User, error) {
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}

	if len(updates) > 0 {
		result := s.db.Model(&User{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update profile: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	return s.GetByID(id)
}

// SetRole lets an admin change a user's role
func (s *Service) SetRole(id uint, role Role) (*User, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	result := s.db.Model(&User{}).Where("id = ?", id).Update("role", role)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	return s.GetByID(id)
}

// ListDeliveryAgents returns active users with the delivery role
func (s *Service) ListDeliveryAgents() ([]User, error) {
	var agents []User
	err := s.db.Where("role = ? AND is_active = ?", RoleDelivery, true).
		Order("first_name ASC").Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery agents: %w", err)
	}
	return agents, nil
}
