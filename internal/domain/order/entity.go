// internal/domain/order/entity.go
package order

import (
	"time"

	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"gorm.io/gorm"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// DeliveryType represents how an order reaches the customer
type DeliveryType string

const (
	DeliveryTypeHome   DeliveryType = "home_delivery"
	DeliveryTypePickup DeliveryType = "pickup"
)

// Order represents the order entity
type Order struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	OrderNumber string       `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID      uint         `gorm:"not null;index" json:"user_id"`
	Status      OrderStatus  `gorm:"not null;default:'pending'" json:"status"`

	// Delivery
	DeliveryType    DeliveryType `gorm:"not null;size:20" json:"delivery_type"`
	DeliveryAddress string       `gorm:"type:text" json:"delivery_address"`
	Phone           string       `gorm:"size:20" json:"phone"`
	DeliveryBoyID   *uint        `gorm:"index" json:"delivery_boy_id"`

	// Financial information. Totals are recomputed whenever items change
	// and always satisfy total = subtotal + delivery charge.
	SubtotalAmount int64 `gorm:"not null" json:"subtotal_amount"` // In paise
	DeliveryCharge int64 `gorm:"default:0" json:"delivery_charge"`
	TotalAmount    int64 `gorm:"not null" json:"total_amount"`

	FreeMilkAdded bool `gorm:"default:false" json:"free_milk_added"`

	// Timestamps
	ProcessedAt *time.Time     `json:"processed_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Payment       *payment.Payment     `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is an immutable snapshot of a cart line captured at
// order-creation time. Later price changes never touch existing orders.
type OrderItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    uint      `gorm:"not null;index" json:"order_id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	Name       string    `gorm:"not null;size:255" json:"name"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Price      int64     `gorm:"not null" json:"price"`       // Unit price in paise
	TotalPrice int64     `gorm:"not null" json:"total_price"` // Quantity * Price
	IsFree     bool      `gorm:"default:false" json:"is_free"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"not null" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy uint        `gorm:"index" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Business methods for Order

// IsTerminal reports whether the order has reached a final status
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return !o.IsTerminal()
}

// RecomputeTotals recalculates subtotal and total from the line items
func (o *Order) RecomputeTotals() {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.TotalPrice
	}
	o.SubtotalAmount = subtotal
	o.TotalAmount = subtotal + o.DeliveryCharge
}

// GetFormattedTotal returns total amount as rupees
func (o *Order) GetFormattedTotal() float64 {
	return float64(o.TotalAmount) / 100
}
