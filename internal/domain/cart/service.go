// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"gorm.io/gorm"
)

const guestCartTTL = 7 * 24 * time.Hour

// Service handles cart business logic
type Service struct {
	db          *gorm.DB
	redisClient *redis.Client
	config      *config.Config
}

// NewService creates a new cart service
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return &Service{
		db:          db,
		redisClient: redisClient,
		config:      cfg,
	}
}

// CartItemResponse represents a cart item with product details
type CartItemResponse struct {
	ID        uint             `json:"id,omitempty"`
	ProductID uint             `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     int64            `json:"price"`
	Product   *product.Product `json:"product,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
}

// CartResponse represents a shopping cart with items and summary
type CartResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	UserID    *uint              `json:"user_id,omitempty"`
	Items     []CartItemResponse `json:"items"`
	Totals    CartTotals         `json:"totals"`
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=0"`
}

// GetCart retrieves cart for user or session
func (s *Service) GetCart(userID *uint, sessionID string) (*CartResponse, error) {
	var items []CartItemResponse

	if userID != nil {
		var dbItems []CartItem
		if err := s.db.Where("user_id = ?", *userID).Order("created_at ASC").Find(&dbItems).Error; err != nil {
			return nil, fmt.Errorf("failed to retrieve user cart: %w", err)
		}
		items = make([]CartItemResponse, len(dbItems))
		for i, item := range dbItems {
			items[i] = CartItemResponse{
				ID:        item.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				AddedAt:   item.CreatedAt,
			}
		}
	} else {
		sessionCart, err := s.getGuestCart(sessionID)
		if err != nil {
			return nil, err
		}
		items = make([]CartItemResponse, len(sessionCart.Items))
		for i, item := range sessionCart.Items {
			items[i] = CartItemResponse{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				AddedAt:   item.AddedAt,
			}
		}
	}

	// Attach product details
	for i := range items {
		var prod product.Product
		if err := s.db.First(&prod, items[i].ProductID).Error; err == nil {
			items[i].Product = &prod
		}
	}

	resp := &CartResponse{
		UserID: userID,
		Items:  items,
		Totals: calculateTotals(items),
	}
	if userID == nil {
		resp.SessionID = sessionID
	}
	return resp, nil
}

// AddItem adds a product to the cart, snapshotting the tier price.
// Quantity accumulates if the product is already present.
func (s *Service) AddItem(userID *uint, sessionID string, isB2B bool, req *AddToCartRequest) (*CartResponse, error) {
	var prod product.Product
	if err := s.db.First(&prod, req.ProductID).Error; err != nil {
		return nil, fmt.Errorf("product not found")
	}
	if !prod.IsActive {
		return nil, fmt.Errorf("product '%s' is no longer available", prod.Name)
	}
	price := prod.PriceFor(isB2B)

	if userID != nil {
		var existing CartItem
		err := s.db.Where("user_id = ? AND product_id = ?", *userID, req.ProductID).First(&existing).Error
		switch {
		case err == nil:
			if err := s.db.Model(&existing).Updates(map[string]interface{}{
				"quantity": existing.Quantity + req.Quantity,
				"price":    price,
			}).Error; err != nil {
				return nil, fmt.Errorf("failed to update cart item: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			item := CartItem{
				UserID:    *userID,
				ProductID: req.ProductID,
				Quantity:  req.Quantity,
				Price:     price,
			}
			if err := s.db.Create(&item).Error; err != nil {
				return nil, fmt.Errorf("failed to add cart item: %w", err)
			}
		default:
			return nil, fmt.Errorf("failed to check cart: %w", err)
		}
		return s.GetCart(userID, sessionID)
	}

	// Guest cart
	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == req.ProductID {
			sessionCart.Items[i].Quantity += req.Quantity
			sessionCart.Items[i].Price = price
			found = true
			break
		}
	}
	if !found {
		sessionCart.Items = append(sessionCart.Items, SessionCartItem{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Price:     price,
			AddedAt:   time.Now().UTC(),
		})
	}
	if err := s.saveGuestCart(sessionCart); err != nil {
		return nil, err
	}
	return s.GetCart(nil, sessionID)
}

// UpdateItem changes a cart line's quantity; zero removes it
func (s *Service) UpdateItem(userID *uint, sessionID string, productID uint, quantity int) (*CartResponse, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative")
	}

	if userID != nil {
		if quantity == 0 {
			if err := s.db.Where("user_id = ? AND product_id = ?", *userID, productID).Delete(&CartItem{}).Error; err != nil {
				return nil, fmt.Errorf("failed to remove cart item: %w", err)
			}
		} else {
			result := s.db.Model(&CartItem{}).
				Where("user_id = ? AND product_id = ?", *userID, productID).
				Update("quantity", quantity)
			if result.Error != nil {
				return nil, fmt.Errorf("failed to update cart item: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return nil, fmt.Errorf("cart item not found")
			}
		}
		return s.GetCart(userID, sessionID)
	}

	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return nil, err
	}
	kept := sessionCart.Items[:0]
	found := false
	for _, item := range sessionCart.Items {
		if item.ProductID == productID {
			found = true
			if quantity == 0 {
				continue
			}
			item.Quantity = quantity
		}
		kept = append(kept, item)
	}
	if !found {
		return nil, fmt.Errorf("cart item not found")
	}
	sessionCart.Items = kept
	if err := s.saveGuestCart(sessionCart); err != nil {
		return nil, err
	}
	return s.GetCart(nil, sessionID)
}

// ClearCart removes every line from the cart
func (s *Service) ClearCart(userID *uint, sessionID string) error {
	if userID != nil {
		if err := s.db.Where("user_id = ?", *userID).Delete(&CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.redisClient.Del(ctx, guestCartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear guest cart: %w", err)
	}
	return nil
}

// MergeGuestCart moves a guest session cart into the user's DB cart on login
func (s *Service) MergeGuestCart(userID uint, sessionID string, isB2B bool) error {
	if sessionID == "" {
		return nil
	}
	sessionCart, err := s.getGuestCart(sessionID)
	if err != nil {
		return err
	}
	for _, item := range sessionCart.Items {
		req := &AddToCartRequest{ProductID: item.ProductID, Quantity: item.Quantity}
		if _, err := s.AddItem(&userID, "", isB2B, req); err != nil {
			return fmt.Errorf("failed to merge guest cart item: %w", err)
		}
	}
	return s.ClearCart(nil, sessionID)
}

// Helpers

func calculateTotals(items []CartItemResponse) CartTotals {
	totals := CartTotals{ItemCount: len(items)}
	for _, item := range items {
		totals.TotalQuantity += item.Quantity
		totals.SubTotal += item.Price * int64(item.Quantity)
	}
	return totals
}

func guestCartKey(sessionID string) string {
	return "cart:session:" + sessionID
}

func (s *Service) getGuestCart(sessionID string) (*SessionCart, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID required for guest cart")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	val, err := s.redisClient.Get(ctx, guestCartKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		now := time.Now().UTC()
		return &SessionCart{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve guest cart: %w", err)
	}

	var sessionCart SessionCart
	if err := json.Unmarshal([]byte(val), &sessionCart); err != nil {
		return nil, fmt.Errorf("failed to decode guest cart: %w", err)
	}
	return &sessionCart, nil
}

func (s *Service) saveGuestCart(sessionCart *SessionCart) error {
	sessionCart.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(sessionCart)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.redisClient.Set(ctx, guestCartKey(sessionCart.SessionID), payload, guestCartTTL).Err(); err != nil {
		return fmt.Errorf("failed to store guest cart: %w", err)
	}
	return nil
}
