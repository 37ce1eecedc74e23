// internal/domain/payment/entity.go
package payment

import (
	"time"

	"gorm.io/gorm"
)

// Method represents how a payment is collected
type Method string

const (
	MethodRazorpay     Method = "razorpay"
	MethodCashOnDelivery Method = "cod"
	MethodBankTransfer Method = "bank_transfer"
)

// Status represents payment status
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// ValidMethod reports whether m is a known payment method
func ValidMethod(m Method) bool {
	switch m {
	case MethodRazorpay, MethodCashOnDelivery, MethodBankTransfer:
		return true
	}
	return false
}

// Payment represents a payment transaction. OrderID is nullable because
// subscription payments have no order correlation.
type Payment struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrderID        *uint          `gorm:"index" json:"order_id,omitempty"`
	SubscriptionID *uint          `gorm:"index" json:"subscription_id,omitempty"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	Amount         int64          `gorm:"not null" json:"amount"` // In paise
	Method         Method         `gorm:"not null;size:20" json:"method"`
	Status         Status         `gorm:"not null;default:'pending'" json:"status"`
	GatewayOrderID string         `gorm:"size:255" json:"gateway_order_id"` // External gateway reference
	TransactionID  string         `gorm:"size:255" json:"transaction_id"`   // Gateway transaction id once confirmed
	ProcessedAt    *time.Time     `json:"processed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Payment) TableName() string { return "payments" }

// IsSettled reports whether the payment reached a final state
func (p *Payment) IsSettled() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
