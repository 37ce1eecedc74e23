// internal/domain/analytics/service.go
package analytics

import (
	"fmt"
	"time"

	"github.com/your-org/milkcart-backend/internal/domain/order"
	"gorm.io/gorm"
)

// assumedPriorPeriodRatio approximates the previous period's numbers
// for delta display. A rough heuristic, not a historical comparison.
const assumedPriorPeriodRatio = 0.85

// Service computes read-only sales aggregates. No writes, no events.
type Service struct {
	db *gorm.DB
}

// NewService creates a new analytics service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Dashboard is the admin analytics summary for one period
type Dashboard struct {
	PeriodDays      int           `json:"period_days"`
	From            time.Time     `json:"from"`
	To              time.Time     `json:"to"`
	TotalOrders     int64         `json:"total_orders"`
	DeliveredOrders int64         `json:"delivered_orders"`
	CancelledOrders int64         `json:"cancelled_orders"`
	Revenue         int64         `json:"revenue"` // Delivered orders, smallest currency unit
	RevenueDelta    float64       `json:"revenue_delta_pct"`
	OrdersDelta     float64       `json:"orders_delta_pct"`
	TopProducts     []ProductSale `json:"top_products"`
	VariantSales    []VariantSale `json:"variant_sales"`
}

// ProductSale is per-product quantity and revenue across delivered orders
type ProductSale struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

// VariantSale aggregates by milk type and variant
type VariantSale struct {
	Type     string `json:"type"`
	Variant  string `json:"variant"`
	Quantity int64  `json:"quantity"`
	Revenue  int64  `json:"revenue"`
}

// GetDashboard builds the summary for the trailing periodDays window
func (s *Service) GetDashboard(periodDays int) (*Dashboard, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -periodDays)

	dash := &Dashboard{
		PeriodDays: periodDays,
		From:       from,
		To:         to,
	}

	base := s.db.Model(&order.Order{}).Where("created_at >= ? AND created_at < ?", from, to)

	if err := base.Session(&gorm.Session{}).Count(&dash.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", order.OrderStatusDelivered).
		Count(&dash.DeliveredOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count delivered orders: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", order.OrderStatusCancelled).
		Count(&dash.CancelledOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count cancelled orders: %w", err)
	}

	var revenue struct{ Total int64 }
	err := s.db.Model(&order.Order{}).
		Select("COALESCE(SUM(total_amount), 0) AS total").
		Where("status = ? AND created_at >= ? AND created_at < ?", order.OrderStatusDelivered, from, to).
		Scan(&revenue).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	dash.Revenue = revenue.Total

	dash.RevenueDelta = periodDelta(float64(dash.Revenue))
	dash.OrdersDelta = periodDelta(float64(dash.TotalOrders))

	top, err := s.TopProducts(from, to, 5)
	if err != nil {
		return nil, err
	}
	dash.TopProducts = top

	variants, err := s.VariantSales(from, to)
	if err != nil {
		return nil, err
	}
	dash.VariantSales = variants

	return dash, nil
}

// TopProducts ranks products by quantity sold in delivered orders
func (s *Service) TopProducts(from, to time.Time, limit int) ([]ProductSale, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var sales []ProductSale
	err := s.db.Model(&order.OrderItem{}).
		Select("order_items.product_id, order_items.name, SUM(order_items.quantity) AS quantity, SUM(order_items.total_price) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status = ? AND orders.created_at >= ? AND orders.created_at < ?",
			order.OrderStatusDelivered, from, to).
		Where("order_items.is_free = ?", false).
		Group("order_items.product_id, order_items.name").
		Order("quantity DESC").
		Limit(limit).
		Scan(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank products: %w", err)
	}
	return sales, nil
}

// VariantSales aggregates delivered quantity and revenue by milk type
// and variant.
func (s *Service) VariantSales(from, to time.Time) ([]VariantSale, error) {
	var sales []VariantSale
	err := s.db.Model(&order.OrderItem{}).
		Select("products.type, products.variant, SUM(order_items.quantity) AS quantity, SUM(order_items.total_price) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN products ON products.id = order_items.product_id").
		Where("orders.status = ? AND orders.created_at >= ? AND orders.created_at < ?",
			order.OrderStatusDelivered, from, to).
		Group("products.type, products.variant").
		Order("revenue DESC").
		Scan(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate variant sales: %w", err)
	}
	return sales, nil
}

// periodDelta estimates percent change against an assumed prior period
func periodDelta(current float64) float64 {
	prior := current * assumedPriorPeriodRatio
	if prior == 0 {
		return 0
	}
	return (current - prior) / prior * 100
}
