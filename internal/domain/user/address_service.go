// internal/domain/user/address_service.go
package user

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrAddressNotFound = errors.New("address not found")

// AddressService manages the user's delivery addresses
type AddressService struct {
	db *gorm.DB
}

// NewAddressService creates a new address service
func NewAddressService(db *gorm.DB) *AddressService {
	return &AddressService{db: db}
}

// AddressRequest represents address create/update data
type AddressRequest struct {
	Label        string `json:"label"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	IsDefault    bool   `json:"is_default"`
}

// List returns the user's addresses, default first
func (s *AddressService) List(userID uint) ([]Address, error) {
	var addresses []Address
	err := s.db.Where("user_id = ?", userID).
		Order("is_default DESC, created_at ASC").
		Find(&addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

// Create adds an address. The first address becomes the default; marking
// a later one default clears the previous default in the same transaction.
func (s *AddressService) Create(userID uint, req *AddressRequest) (*Address, error) {
	addr := &Address{
		UserID:       userID,
		Label:        req.Label,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		IsDefault:    req.IsDefault,
	}
	if addr.Label == "" {
		addr.Label = "home"
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count addresses: %w", err)
		}
		if count == 0 {
			addr.IsDefault = true
		} else if addr.IsDefault {
			if err := clearDefault(tx, userID); err != nil {
				return err
			}
		}
		if err := tx.Create(addr).Error; err != nil {
			return fmt.Errorf("failed to create address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// Update modifies one of the user's addresses
func (s *AddressService) Update(userID, addressID uint, req *AddressRequest) (*Address, error) {
	var addr Address

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", addressID, userID).First(&addr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAddressNotFound
			}
			return fmt.Errorf("failed to load address: %w", err)
		}

		if req.IsDefault && !addr.IsDefault {
			if err := clearDefault(tx, userID); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"label":         req.Label,
			"address_line1": req.AddressLine1,
			"address_line2": req.AddressLine2,
			"city":          req.City,
			"state":         req.State,
			"postal_code":   req.PostalCode,
			"is_default":    req.IsDefault || addr.IsDefault,
		}
		if err := tx.Model(&addr).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update address: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.First(&addr, addressID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload address: %w", err)
	}
	return &addr, nil
}

// Delete removes one of the user's addresses
func (s *AddressService) Delete(userID, addressID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", addressID, userID).Delete(&Address{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete address: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func clearDefault(tx *gorm.DB, userID uint) error {
	err := tx.Model(&Address{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear default address: %w", err)
	}
	return nil
}
