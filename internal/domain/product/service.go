// internal/domain/product/service.go
package product

import (
	"fmt"

	"github.com/your-org/milkcart-backend/internal/config"
	"gorm.io/gorm"
)

// Service handles product business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new product service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// CreateProductRequest represents product creation data
type CreateProductRequest struct {
	SKU               string   `json:"sku" binding:"required"`
	Name              string   `json:"name" binding:"required"`
	Type              MilkType `json:"type" binding:"required"`
	Variant           string   `json:"variant"`
	FatContent        string   `json:"fat_content"`
	Description       string   `json:"description"`
	PriceB2C          int64    `json:"price_b2c" binding:"required,min=0"`
	PriceB2B          int64    `json:"price_b2b" binding:"required,min=0"`
	Stock             int      `json:"stock" binding:"min=0"`
	LowStockThreshold int      `json:"low_stock_threshold"`
	Unit              string   `json:"unit"`
}

// UpdateProductRequest represents product update data
type UpdateProductRequest struct {
	Name              *string   `json:"name"`
	Type              *MilkType `json:"type"`
	Variant           *string   `json:"variant"`
	FatContent        *string   `json:"fat_content"`
	Description       *string   `json:"description"`
	PriceB2C          *int64    `json:"price_b2c"`
	PriceB2B          *int64    `json:"price_b2b"`
	LowStockThreshold *int      `json:"low_stock_threshold"`
	Unit              *string   `json:"unit"`
	IsActive          *bool     `json:"is_active"`
}

// ProductListRequest represents product list query parameters
type ProductListRequest struct {
	Page     int      `form:"page,default=1"`
	Limit    int      `form:"limit,default=20"`
	Type     MilkType `form:"type"`
	Search   string   `form:"search"`
	OnlyLive bool     `form:"only_live,default=true"`
}

// ProductListResponse represents products with pagination
type ProductListResponse struct {
	Products []Product `json:"products"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

func validMilkType(t MilkType) bool {
	return t == MilkTypeCow || t == MilkTypeBuffalo
}

// CreateProduct creates a new catalog product
func (s *Service) CreateProduct(req *CreateProductRequest) (*Product, error) {
	if !validMilkType(req.Type) {
		return nil, fmt.Errorf("invalid milk type: %s", req.Type)
	}
	if req.PriceB2C < 0 || req.PriceB2B < 0 {
		return nil, fmt.Errorf("prices must not be negative")
	}

	var existing Product
	if err := s.db.Where("sku = ?", req.SKU).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("product with SKU '%s' already exists", req.SKU)
	}

	prod := &Product{
		SKU:               req.SKU,
		Name:              req.Name,
		Type:              req.Type,
		Variant:           req.Variant,
		FatContent:        req.FatContent,
		Description:       req.Description,
		PriceB2C:          req.PriceB2C,
		PriceB2B:          req.PriceB2B,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		Unit:              req.Unit,
		IsActive:          true,
	}
	if prod.LowStockThreshold <= 0 {
		prod.LowStockThreshold = 10
	}
	if prod.Unit == "" {
		prod.Unit = "litre"
	}

	if err := s.db.Create(prod).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return prod, nil
}

// GetProducts retrieves products with filtering and pagination
func (s *Service) GetProducts(req *ProductListRequest) (*ProductListResponse, error) {
	var products []Product
	var total int64

	query := s.db.Model(&Product{})
	if req.OnlyLive {
		query = query.Where("is_active = ?", true)
	}
	if req.Type != "" {
		query = query.Where("type = ?", req.Type)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("name ILIKE ? OR variant ILIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.Limit).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve products: %w", err)
	}

	return &ProductListResponse{
		Products: products,
		Total:    total,
		Page:     req.Page,
		Limit:    req.Limit,
	}, nil
}

// GetProduct retrieves a single product by ID
func (s *Service) GetProduct(id uint) (*Product, error) {
	var prod Product
	if err := s.db.First(&prod, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("product not found")
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &prod, nil
}

// FirstActiveCowMilk returns the first active cow-milk product.
// Used by the monthly subscription perk.
func (s *Service) FirstActiveCowMilk() (*Product, error) {
	var prod Product
	err := s.db.
		Where("type = ? AND is_active = ?", MilkTypeCow, true).
		Order("id ASC").
		First(&prod).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("no active cow milk product available")
		}
		return nil, fmt.Errorf("failed to look up cow milk product: %w", err)
	}
	return &prod, nil
}

// UpdateProduct applies a partial update to a product
func (s *Service) UpdateProduct(id uint, req *UpdateProductRequest) (*Product, error) {
	prod, err := s.GetProduct(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Type != nil {
		if !validMilkType(*req.Type) {
			return nil, fmt.Errorf("invalid milk type: %s", *req.Type)
		}
		updates["type"] = *req.Type
	}
	if req.Variant != nil {
		updates["variant"] = *req.Variant
	}
	if req.FatContent != nil {
		updates["fat_content"] = *req.FatContent
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.PriceB2C != nil {
		if *req.PriceB2C < 0 {
			return nil, fmt.Errorf("price must not be negative")
		}
		updates["price_b2c"] = *req.PriceB2C
	}
	if req.PriceB2B != nil {
		if *req.PriceB2B < 0 {
			return nil, fmt.Errorf("price must not be negative")
		}
		updates["price_b2b"] = *req.PriceB2B
	}
	if req.LowStockThreshold != nil {
		updates["low_stock_threshold"] = *req.LowStockThreshold
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return prod, nil
	}

	if err := s.db.Model(prod).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return s.GetProduct(id)
}

// DeactivateProduct soft-disables a product (soft delete per catalog rules)
func (s *Service) DeactivateProduct(id uint) error {
	result := s.db.Model(&Product{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product not found")
	}
	return nil
}

// Restock increases stock and records the movement
func (s *Service) Restock(id uint, quantity int, adminID uint) (*Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive")
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var prod Product
	if err := tx.First(&prod, id).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("product not found")
	}

	previous := prod.Stock
	if err := tx.Model(&prod).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity)).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to restock product: %w", err)
	}

	movement := StockMovement{
		ProductID:        prod.ID,
		Reason:           ReasonRestock,
		Quantity:         quantity,
		PreviousQuantity: previous,
		NewQuantity:      previous + quantity,
		CreatedBy:        adminID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to record stock movement: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit restock: %w", err)
	}

	return s.GetProduct(id)
}

// GetStockMovements lists the audit trail for a product
func (s *Service) GetStockMovements(productID uint, limit int) ([]StockMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var movements []StockMovement
	err := s.db.
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve stock movements: %w", err)
	}
	return movements, nil
}
