// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// MilkType represents the kind of milk a product carries
type MilkType string

const (
	MilkTypeCow     MilkType = "cow_milk"
	MilkTypeBuffalo MilkType = "buffalo_milk"
)

// MovementReason represents the reason for a stock movement
type MovementReason string

const (
	ReasonOrder      MovementReason = "order"
	ReasonCancel     MovementReason = "cancel"
	ReasonItemCancel MovementReason = "item_cancel"
	ReasonRestock    MovementReason = "restock"
	ReasonAdjustment MovementReason = "adjustment"
)

// Product represents the product entity
type Product struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	SKU               string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name              string         `gorm:"not null;size:255" json:"name"`
	Type              MilkType       `gorm:"not null;size:20;index" json:"type"`
	Variant           string         `gorm:"size:100" json:"variant"`
	FatContent        string         `gorm:"size:50" json:"fat_content"`
	Description       string         `gorm:"type:text" json:"description"`
	PriceB2C          int64          `gorm:"not null" json:"price_b2c"` // Price in paise
	PriceB2B          int64          `gorm:"not null" json:"price_b2b"`
	Stock             int            `gorm:"default:0" json:"stock"`
	LowStockThreshold int            `gorm:"default:10" json:"low_stock_threshold"`
	Unit              string         `gorm:"size:20;default:'litre'" json:"unit"`
	IsActive          bool           `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// StockMovement is an audit row written for every stock change.
// Stock itself is only mutated by the order lifecycle and admin restock.
type StockMovement struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ProductID        uint           `gorm:"not null;index" json:"product_id"`
	Reason           MovementReason `gorm:"not null;size:20" json:"reason"`
	Quantity         int            `gorm:"not null" json:"quantity"` // Negative for decrements
	PreviousQuantity int            `gorm:"not null" json:"previous_quantity"`
	NewQuantity      int            `gorm:"not null" json:"new_quantity"`
	ReferenceType    string         `gorm:"size:50" json:"reference_type,omitempty"` // e.g. "order"
	ReferenceID      uint           `json:"reference_id,omitempty"`
	CreatedBy        uint           `gorm:"index" json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TableName overrides
func (Product) TableName() string       { return "products" }
func (StockMovement) TableName() string { return "stock_movements" }

// Business methods for Product

// PriceFor returns the unit price for the given buyer tier
func (p *Product) PriceFor(isB2B bool) int64 {
	if isB2B {
		return p.PriceB2B
	}
	return p.PriceB2C
}

// IsInStock checks if any stock remains
func (p *Product) IsInStock() bool {
	return p.Stock > 0
}

// IsLowStock checks if stock is at or below the alert threshold
func (p *Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

// GetFormattedPrice returns the B2C price as rupees
func (p *Product) GetFormattedPrice() float64 {
	return float64(p.PriceB2C) / 100
}
