// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/cart"
	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"github.com/your-org/milkcart-backend/internal/domain/subscription"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/gorm"
)

// Service handles the order lifecycle and keeps stock consistent with it.
// Every multi-document workflow runs inside one database transaction;
// events are published only after the transaction commits.
type Service struct {
	db          *gorm.DB
	config      *config.Config
	cartService *cart.Service
	publisher   events.Publisher
	log         *logrus.Logger
}

// NewService creates a new order service
func NewService(db *gorm.DB, cfg *config.Config, cartService *cart.Service, publisher events.Publisher, log *logrus.Logger) *Service {
	return &Service{
		db:          db,
		config:      cfg,
		cartService: cartService,
		publisher:   publisher,
		log:         log,
	}
}

// CreateOrderRequest represents order creation data
type CreateOrderRequest struct {
	DeliveryType    DeliveryType   `json:"delivery_type" binding:"required,oneof=home_delivery pickup"`
	DeliveryAddress string         `json:"delivery_address,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	PaymentMethod   payment.Method `json:"payment_method,omitempty"`
}

// CreateOrderResponse bundles the populated order with its payment record
type CreateOrderResponse struct {
	Order   *Order           `json:"order"`
	Payment *payment.Payment `json:"payment"`
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page      int          `form:"page,default=1"`
	Limit     int          `form:"limit,default=20"`
	Status    OrderStatus  `form:"status"`
	UserID    uint         `form:"user_id"`
	Delivery  DeliveryType `form:"delivery_type"`
	SortBy    string       `form:"sort_by,default=created_at"`
	SortOrder string       `form:"sort_order,default=desc"`
}

// OrderListResponse represents orders with pagination
type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// CreateOrder converts the user's cart into an immutable order snapshot,
// decrementing stock with a conditional update so two concurrent orders
// can never drive stock negative.
func (s *Service) CreateOrder(userID uint, sessionID string, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var owner user.User
	if err := s.db.Preload("Addresses").First(&owner, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	cartResponse, err := s.cartService.GetCart(&userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}
	if len(cartResponse.Items) == 0 {
		return nil, ErrEmptyCart
	}

	deliveryAddress, phone, err := s.resolveDeliveryDetails(&owner, req)
	if err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = payment.MethodRazorpay
	}
	if !payment.ValidMethod(method) {
		return nil, fmt.Errorf("invalid payment method: %s", method)
	}

	deliveryCharge := int64(0)
	if req.DeliveryType == DeliveryTypeHome {
		deliveryCharge = s.config.Delivery.HomeDeliveryCharge
	}

	ord := Order{
		UserID:          userID,
		Status:          OrderStatusPending,
		DeliveryType:    req.DeliveryType,
		DeliveryAddress: deliveryAddress,
		Phone:           phone,
		DeliveryCharge:  deliveryCharge,
	}
	var pay payment.Payment
	var lowStock []product.Product

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ord).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		// Snapshot every cart line at the caller's price tier and take
		// its stock. The conditional decrement is the oversell guard.
		for _, line := range cartResponse.Items {
			item, prod, err := s.takeStockForLine(tx, &ord, line.ProductID, line.Quantity, owner.IsB2B, userID)
			if err != nil {
				return err
			}
			ord.Items = append(ord.Items, *item)
			if prod.IsLowStock() {
				lowStock = append(lowStock, *prod)
			}
		}

		// Monthly subscription perk: one free cow-milk line per calendar month
		if eligible, err := s.freeMilkEligible(tx, userID); err != nil {
			return err
		} else if eligible {
			if err := s.addFreeMilkLine(tx, &ord, userID); err != nil {
				return err
			}
		}

		ord.RecomputeTotals()
		ord.OrderNumber = generateOrderNumber(ord.ID)
		if err := tx.Model(&Order{}).Where("id = ?", ord.ID).Updates(map[string]interface{}{
			"order_number":    ord.OrderNumber,
			"subtotal_amount": ord.SubtotalAmount,
			"total_amount":    ord.TotalAmount,
			"free_milk_added": ord.FreeMilkAdded,
		}).Error; err != nil {
			return fmt.Errorf("failed to finalize order: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   ord.ID,
			Status:    OrderStatusPending,
			Comment:   "Order created",
			CreatedBy: userID,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		orderID := ord.ID
		pay = payment.Payment{
			OrderID: &orderID,
			UserID:  userID,
			Amount:  ord.TotalAmount,
			Method:  method,
			Status:  payment.StatusPending,
		}
		if err := tx.Create(&pay).Error; err != nil {
			return fmt.Errorf("failed to create payment record: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cartService.ClearCart(&userID, sessionID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).
			Warn("failed to clear cart after order creation")
	}

	full, err := s.GetOrder(ord.ID)
	if err != nil {
		return nil, err
	}

	s.publishNewOrder(full, &owner)
	for i := range lowStock {
		s.publishLowStock(&lowStock[i])
	}

	return &CreateOrderResponse{Order: full, Payment: &pay}, nil
}

// takeStockForLine re-prices a cart line, conditionally decrements stock
// and writes the snapshot row plus the stock movement audit entry.
func (s *Service) takeStockForLine(tx *gorm.DB, ord *Order, productID uint, quantity int, isB2B bool, actorID uint) (*OrderItem, *product.Product, error) {
	var prod product.Product
	if err := tx.First(&prod, productID).Error; err != nil {
		return nil, nil, fmt.Errorf("product %d not found", productID)
	}
	if !prod.IsActive {
		return nil, nil, fmt.Errorf("product '%s' is no longer available", prod.Name)
	}

	result := tx.Model(&product.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return nil, nil, fmt.Errorf("failed to decrement stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil, &InsufficientStockError{
			ProductID:   prod.ID,
			ProductName: prod.Name,
			Available:   prod.Stock,
			Requested:   quantity,
		}
	}

	movement := product.StockMovement{
		ProductID:        prod.ID,
		Reason:           product.ReasonOrder,
		Quantity:         -quantity,
		PreviousQuantity: prod.Stock,
		NewQuantity:      prod.Stock - quantity,
		ReferenceType:    "order",
		ReferenceID:      ord.ID,
		CreatedBy:        actorID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to record stock movement: %w", err)
	}

	price := prod.PriceFor(isB2B)
	item := OrderItem{
		OrderID:    ord.ID,
		ProductID:  prod.ID,
		Name:       prod.Name,
		Quantity:   quantity,
		Price:      price,
		TotalPrice: price * int64(quantity),
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create order item: %w", err)
	}

	prod.Stock -= quantity
	return &item, &prod, nil
}

// freeMilkEligible checks for an active monthly subscription and no
// perk order yet in the current calendar month.
func (s *Service) freeMilkEligible(tx *gorm.DB, userID uint) (bool, error) {
	var subCount int64
	err := tx.Model(&subscription.Subscription{}).
		Where("user_id = ? AND status = ? AND plan_duration = ?",
			userID, subscription.StatusActive, subscription.MonthlyPlanDays).
		Count(&subCount).Error
	if err != nil {
		return false, fmt.Errorf("failed to check subscriptions: %w", err)
	}
	if subCount == 0 {
		return false, nil
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var perkCount int64
	err = tx.Model(&Order{}).
		Where("user_id = ? AND free_milk_added = ? AND created_at >= ?", userID, true, monthStart).
		Count(&perkCount).Error
	if err != nil {
		return false, fmt.Errorf("failed to check perk usage: %w", err)
	}
	return perkCount == 0, nil
}

// addFreeMilkLine appends the zero-priced perk line. The free units still
// consume stock; if the cow-milk product cannot cover them the perk is
// skipped rather than failing the order.
func (s *Service) addFreeMilkLine(tx *gorm.DB, ord *Order, actorID uint) error {
	quantity := s.config.Delivery.FreeMilkQuantity
	if quantity <= 0 {
		quantity = 2
	}

	var prod product.Product
	err := tx.Where("type = ? AND is_active = ?", product.MilkTypeCow, true).
		Order("id ASC").First(&prod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up cow milk product: %w", err)
	}

	result := tx.Model(&product.Product{}).
		Where("id = ? AND stock >= ?", prod.ID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to decrement stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	movement := product.StockMovement{
		ProductID:        prod.ID,
		Reason:           product.ReasonOrder,
		Quantity:         -quantity,
		PreviousQuantity: prod.Stock,
		NewQuantity:      prod.Stock - quantity,
		ReferenceType:    "order",
		ReferenceID:      ord.ID,
		CreatedBy:        actorID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}

	item := OrderItem{
		OrderID:    ord.ID,
		ProductID:  prod.ID,
		Name:       prod.Name,
		Quantity:   quantity,
		Price:      0,
		TotalPrice: 0,
		IsFree:     true,
	}
	if err := tx.Create(&item).Error; err != nil {
		return fmt.Errorf("failed to create free milk item: %w", err)
	}

	ord.Items = append(ord.Items, item)
	ord.FreeMilkAdded = true
	return nil
}

// GetOrders retrieves orders with filtering and pagination
func (s *Service) GetOrders(req *OrderListRequest) (*OrderListResponse, error) {
	var orders []Order
	var total int64

	query := s.db.Model(&Order{}).
		Preload("Items").
		Preload("Payment").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		})

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Delivery != "" {
		query = query.Where("delivery_type = ?", req.Delivery)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	query = query.Order(buildOrderClause(req.SortBy, req.SortOrder))

	offset := (req.Page - 1) * req.Limit
	if err := query.Offset(offset).Limit(req.Limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// GetOrder retrieves a single order by ID
func (s *Service) GetOrder(id uint) (*Order, error) {
	var ord Order
	result := s.db.
		Preload("Items").
		Preload("Payment").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		First(&ord, id)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}
	return &ord, nil
}

// GetUserOrders retrieves orders for a specific user
func (s *Service) GetUserOrders(userID uint, page, limit int) (*OrderListResponse, error) {
	return s.GetOrders(&OrderListRequest{
		Page:      page,
		Limit:     limit,
		UserID:    userID,
		SortBy:    "created_at",
		SortOrder: "desc",
	})
}

// GetDeliveryOrders retrieves home-delivery orders visible to a delivery
// actor: unassigned ones plus their own assignments.
func (s *Service) GetDeliveryOrders(deliveryBoyID uint, page, limit int) (*OrderListResponse, error) {
	var orders []Order
	var total int64

	query := s.db.Model(&Order{}).
		Preload("Items").
		Where("delivery_type = ?", DeliveryTypeHome).
		Where("status NOT IN ?", []OrderStatus{OrderStatusDelivered, OrderStatusCancelled}).
		Where("delivery_boy_id IS NULL OR delivery_boy_id = ?", deliveryBoyID)

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve delivery orders: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &OrderListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}, nil
}

// UpdateStatus changes the order status. The transition table rejects
// illegal edges; terminal orders never move again.
func (s *Service) UpdateStatus(orderID uint, newStatus OrderStatus, actorID uint, actorRole user.Role) (*Order, error) {
	if !actorRole.Can(user.CapUpdateOrderState) {
		return nil, ErrNotOwner
	}
	if !ValidStatus(newStatus) {
		return nil, fmt.Errorf("invalid order status: %s", newStatus)
	}

	var ord Order
	var oldStatus OrderStatus

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		oldStatus = ord.Status
		if err := checkTransition(oldStatus, newStatus); err != nil {
			return err
		}

		updates := map[string]interface{}{"status": newStatus}
		now := time.Now().UTC()
		switch newStatus {
		case OrderStatusProcessing:
			updates["processed_at"] = now
		case OrderStatusDelivered:
			updates["delivered_at"] = now
		}

		if err := tx.Model(&ord).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   orderID,
			Status:    newStatus,
			CreatedBy: actorID,
			CreatedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	full, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	s.publishStatusUpdate(full, oldStatus, full.Status)
	return full, nil
}

// TakeOrder lets a delivery actor claim a home-delivery order. Re-taking
// by the same actor is a no-op; a different actor gets ErrAlreadyAssigned.
func (s *Service) TakeOrder(orderID uint, deliveryBoyID uint, actorRole user.Role) (*Order, error) {
	if !actorRole.Can(user.CapTakeOrder) {
		return nil, ErrNotOwner
	}

	var oldStatus OrderStatus
	var statusChanged bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ord Order
		if err := tx.First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if ord.DeliveryType != DeliveryTypeHome {
			return ErrNotHomeDelivery
		}
		if ord.DeliveryBoyID != nil && *ord.DeliveryBoyID != deliveryBoyID {
			return ErrAlreadyAssigned
		}
		if ord.IsTerminal() {
			return ErrTerminalState
		}

		updates := map[string]interface{}{"delivery_boy_id": deliveryBoyID}
		oldStatus = ord.Status
		if ord.Status == OrderStatusPending || ord.Status == OrderStatusConfirmed {
			if err := checkTransition(ord.Status, OrderStatusProcessing); err != nil {
				return err
			}
			updates["status"] = OrderStatusProcessing
			updates["processed_at"] = time.Now().UTC()
			statusChanged = true
		}

		if err := tx.Model(&ord).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to assign order: %w", err)
		}

		if statusChanged {
			history := OrderStatusHistory{
				OrderID:   orderID,
				Status:    OrderStatusProcessing,
				Comment:   "Picked up by delivery agent",
				CreatedBy: deliveryBoyID,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("failed to create status history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	full, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	s.publishAssignment(full)
	if statusChanged {
		s.publishStatusUpdate(full, oldStatus, full.Status)
	}
	return full, nil
}

// AssignDelivery lets an admin or mediator set the delivery actor. The
// current assignee, if any, is overwritten.
func (s *Service) AssignDelivery(orderID uint, deliveryBoyID uint, actorRole user.Role) (*Order, error) {
	if !actorRole.Can(user.CapAssignDelivery) {
		return nil, ErrNotOwner
	}

	var agent user.User
	if err := s.db.First(&agent, deliveryBoyID).Error; err != nil {
		return nil, fmt.Errorf("delivery agent not found")
	}
	if agent.Role != user.RoleDelivery {
		return nil, fmt.Errorf("user %d is not a delivery agent", deliveryBoyID)
	}

	result := s.db.Model(&Order{}).Where("id = ?", orderID).
		Update("delivery_boy_id", deliveryBoyID)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to assign delivery: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrOrderNotFound
	}

	full, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	s.publishAssignment(full)
	return full, nil
}

// CancelOrder cancels a non-terminal order and restores every line's
// stock inside the same transaction. Repeat cancellation is rejected,
// never double-restored.
func (s *Service) CancelOrder(orderID uint, actorID uint, actorRole user.Role) (*Order, error) {
	var oldStatus OrderStatus

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ord Order
		if err := tx.Preload("Items").First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if ord.UserID != actorID && !actorRole.Can(user.CapCancelAnyOrder) {
			return ErrNotOwner
		}
		if ord.Status == OrderStatusCancelled {
			return ErrAlreadyCancelled
		}
		if ord.Status == OrderStatusDelivered {
			return ErrTerminalState
		}
		oldStatus = ord.Status

		for _, item := range ord.Items {
			if err := restoreStock(tx, item, product.ReasonCancel, actorID); err != nil {
				return err
			}
		}

		if err := tx.Model(&ord).Update("status", OrderStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   orderID,
			Status:    OrderStatusCancelled,
			Comment:   "Order cancelled",
			CreatedBy: actorID,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		return cancelPayment(tx, orderID)
	})
	if err != nil {
		return nil, err
	}

	full, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	s.publishCancellation(full, oldStatus)
	return full, nil
}

// CancelItem removes one line from a non-terminal order, restoring its
// stock and recomputing totals. Removing the last line cancels the
// whole order.
func (s *Service) CancelItem(orderID, itemID uint, actorID uint) (*Order, error) {
	var oldStatus OrderStatus
	var orderCancelled bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ord Order
		if err := tx.Preload("Items").First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if ord.UserID != actorID {
			return ErrNotOwner
		}
		if ord.IsTerminal() {
			return ErrTerminalState
		}
		oldStatus = ord.Status

		var target *OrderItem
		remaining := make([]OrderItem, 0, len(ord.Items))
		for i := range ord.Items {
			if ord.Items[i].ID == itemID {
				target = &ord.Items[i]
				continue
			}
			remaining = append(remaining, ord.Items[i])
		}
		if target == nil {
			return ErrItemNotFound
		}

		if err := restoreStock(tx, *target, product.ReasonItemCancel, actorID); err != nil {
			return err
		}
		if err := tx.Delete(&OrderItem{}, target.ID).Error; err != nil {
			return fmt.Errorf("failed to remove order item: %w", err)
		}

		ord.Items = remaining
		ord.RecomputeTotals()

		updates := map[string]interface{}{
			"subtotal_amount": ord.SubtotalAmount,
			"total_amount":    ord.TotalAmount,
		}

		// Removing the last line is equivalent to whole-order cancellation
		if len(remaining) == 0 {
			updates["status"] = OrderStatusCancelled
			orderCancelled = true
		}

		if err := tx.Model(&Order{}).Where("id = ?", ord.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order totals: %w", err)
		}

		if orderCancelled {
			history := OrderStatusHistory{
				OrderID:   orderID,
				Status:    OrderStatusCancelled,
				Comment:   "Last item cancelled",
				CreatedBy: actorID,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("failed to create status history: %w", err)
			}
			return cancelPayment(tx, orderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	full, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	if orderCancelled {
		s.publishCancellation(full, oldStatus)
	} else {
		s.publishStatusUpdate(full, oldStatus, full.Status)
	}
	return full, nil
}

// DeleteOrder hard-deletes a cancelled order and its payment. Irrecoverable.
func (s *Service) DeleteOrder(orderID uint, actorID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ord Order
		if err := tx.First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if ord.UserID != actorID {
			return ErrNotOwner
		}
		if ord.Status != OrderStatusCancelled {
			return ErrNotCancelledState
		}

		if err := tx.Unscoped().Where("order_id = ?", orderID).Delete(&payment.Payment{}).Error; err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		if err := tx.Where("order_id = ?", orderID).Delete(&OrderItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete order items: %w", err)
		}
		if err := tx.Where("order_id = ?", orderID).Delete(&OrderStatusHistory{}).Error; err != nil {
			return fmt.Errorf("failed to delete status history: %w", err)
		}
		if err := tx.Unscoped().Delete(&Order{}, orderID).Error; err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		return nil
	})
}

// ConfirmPayment is invoked when the payment gateway reports success.
// The payment settles and the order advances to confirmed through the
// same transition table as every other status change.
func (s *Service) ConfirmPayment(orderID uint, transactionID string) (*Order, error) {
	var oldStatus OrderStatus

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ord Order
		if err := tx.First(&ord, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		oldStatus = ord.Status
		if err := checkTransition(oldStatus, OrderStatusConfirmed); err != nil {
			return err
		}

		now := time.Now().UTC()
		result := tx.Model(&payment.Payment{}).
			Where("order_id = ?", orderID).
			Updates(map[string]interface{}{
				"status":         payment.StatusSucceeded,
				"transaction_id": transactionID,
				"processed_at":   now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update payment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("payment record not found for order %d", orderID)
		}

		if err := tx.Model(&ord).Update("status", OrderStatusConfirmed).Error; err != nil {
			return fmt.Errorf("failed to confirm order: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   orderID,
			Status:    OrderStatusConfirmed,
			Comment:   "Payment confirmed",
			CreatedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	full, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	s.publishStatusUpdate(full, oldStatus, full.Status)
	return full, nil
}

// MarkPaymentFailed records a gateway failure. The order stays where it is.
func (s *Service) MarkPaymentFailed(orderID uint) error {
	result := s.db.Model(&payment.Payment{}).
		Where("order_id = ?", orderID).
		Update("status", payment.StatusFailed)
	if result.Error != nil {
		return fmt.Errorf("failed to mark payment failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment record not found for order %d", orderID)
	}
	return nil
}

// Private helpers

func restoreStock(tx *gorm.DB, item OrderItem, reason product.MovementReason, actorID uint) error {
	var prod product.Product
	if err := tx.First(&prod, item.ProductID).Error; err != nil {
		// Product hard-removed from catalog; nothing to restore into
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load product: %w", err)
	}

	if err := tx.Model(&product.Product{}).
		Where("id = ?", item.ProductID).
		UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}

	movement := product.StockMovement{
		ProductID:        item.ProductID,
		Reason:           reason,
		Quantity:         item.Quantity,
		PreviousQuantity: prod.Stock,
		NewQuantity:      prod.Stock + item.Quantity,
		ReferenceType:    "order",
		ReferenceID:      item.OrderID,
		CreatedBy:        actorID,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}

func cancelPayment(tx *gorm.DB, orderID uint) error {
	err := tx.Model(&payment.Payment{}).
		Where("order_id = ? AND status NOT IN ?", orderID,
			[]payment.Status{payment.StatusRefunded}).
		Update("status", payment.StatusCancelled).Error
	if err != nil {
		return fmt.Errorf("failed to cancel payment: %w", err)
	}
	return nil
}

// generateOrderNumber builds the human-readable order identifier.
// Uniqueness comes from the database id, not the clock.
func generateOrderNumber(orderID uint) string {
	return fmt.Sprintf("WC%d%06d", time.Now().UnixMilli(), orderID)
}

func buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"total_amount": true,
		"status":       true,
		"order_number": true,
	}
	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}
	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}

// Event emission. Persisted state is committed before any of these run;
// failures are logged and ignored.

func (s *Service) publish(event events.Event, topics ...string) {
	if s.publisher == nil {
		return
	}
	if err := events.PublishAll(context.Background(), s.publisher, event, topics...); err != nil {
		s.log.WithError(err).WithField("kind", event.Kind).Warn("event publish failed")
	}
}

func (s *Service) orderTopics(ord *Order) []string {
	topics := []string{
		events.TopicOrder(ord.ID),
		events.TopicUser(ord.UserID),
		events.TopicAdmin,
	}
	if ord.DeliveryBoyID != nil {
		topics = append(topics, events.TopicDeliveryActor(*ord.DeliveryBoyID))
	}
	return topics
}

func (s *Service) publishNewOrder(ord *Order, owner *user.User) {
	event := events.Event{
		Kind: events.KindNewOrder,
		Payload: map[string]interface{}{
			"order_id":      ord.ID,
			"order_number":  ord.OrderNumber,
			"status":        ord.Status,
			"total_amount":  ord.TotalAmount,
			"delivery_type": ord.DeliveryType,
			"address":       ord.DeliveryAddress,
			"phone":         ord.Phone,
			"items":         ord.Items,
			"user":          owner.Oneline(),
		},
	}
	s.publish(event, events.TopicAdmin, events.TopicDelivery, events.TopicUser(ord.UserID))

	s.publish(events.Event{
		Kind: events.KindNotification,
		Payload: map[string]interface{}{
			"type":    "order_placed",
			"title":   "Order placed",
			"message": fmt.Sprintf("Your order %s has been placed", ord.OrderNumber),
			"data":    map[string]interface{}{"order_id": ord.ID},
		},
	}, events.TopicUser(ord.UserID))
}

func (s *Service) publishStatusUpdate(ord *Order, oldStatus, newStatus OrderStatus) {
	event := events.Event{
		Kind: events.KindOrderStatusUpdate,
		Payload: map[string]interface{}{
			"order_id":     ord.ID,
			"order_number": ord.OrderNumber,
			"old_status":   oldStatus,
			"new_status":   newStatus,
		},
	}
	s.publish(event, s.orderTopics(ord)...)

	// Active delivery work also surfaces on the delivery channel
	switch newStatus {
	case OrderStatusProcessing, OrderStatusOutForDelivery, OrderStatusDelivered:
		s.publish(events.Event{
			Kind: events.KindDeliveryUpdate,
			Payload: map[string]interface{}{
				"order_id":     ord.ID,
				"order_number": ord.OrderNumber,
				"status":       newStatus,
			},
		}, s.orderTopics(ord)...)
	}
}

func (s *Service) publishCancellation(ord *Order, oldStatus OrderStatus) {
	event := events.Event{
		Kind: events.KindOrderCancelled,
		Payload: map[string]interface{}{
			"order_id":     ord.ID,
			"order_number": ord.OrderNumber,
			"old_status":   oldStatus,
		},
	}
	s.publish(event, s.orderTopics(ord)...)
}

func (s *Service) publishAssignment(ord *Order) {
	event := events.Event{
		Kind: events.KindOrderAssigned,
		Payload: map[string]interface{}{
			"order_id":        ord.ID,
			"order_number":    ord.OrderNumber,
			"delivery_boy_id": ord.DeliveryBoyID,
		},
	}
	s.publish(event, s.orderTopics(ord)...)
}

func (s *Service) publishLowStock(prod *product.Product) {
	s.publish(events.Event{
		Kind: events.KindLowStock,
		Payload: map[string]interface{}{
			"product_id": prod.ID,
			"name":       prod.Name,
			"stock":      prod.Stock,
			"threshold":  prod.LowStockThreshold,
		},
	}, events.TopicAdmin)
}

func (s *Service) resolveDeliveryDetails(owner *user.User, req *CreateOrderRequest) (string, string, error) {
	address := req.DeliveryAddress
	if req.DeliveryType == DeliveryTypeHome && address == "" {
		address = defaultAddress(owner)
		if address == "" {
			return "", "", ErrMissingAddress
		}
	}

	phone := req.Phone
	if phone == "" {
		phone = owner.Phone
	}
	if phone == "" {
		return "", "", ErrMissingPhone
	}
	return address, phone, nil
}

func defaultAddress(owner *user.User) string {
	var fallback string
	for _, addr := range owner.Addresses {
		formatted := formatAddress(addr)
		if addr.IsDefault {
			return formatted
		}
		if fallback == "" {
			fallback = formatted
		}
	}
	return fallback
}

func formatAddress(addr user.Address) string {
	line := addr.AddressLine1
	if addr.AddressLine2 != "" {
		line += ", " + addr.AddressLine2
	}
	if addr.City != "" {
		line += ", " + addr.City
	}
	if addr.State != "" {
		line += ", " + addr.State
	}
	if addr.PostalCode != "" {
		line += " " + addr.PostalCode
	}
	return line
}
