// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/milkcart-backend/internal/domain/cart"
	"github.com/your-org/milkcart-backend/internal/domain/franchise"
	"github.com/your-org/milkcart-backend/internal/domain/order"
	"github.com/your-org/milkcart-backend/internal/domain/payment"
	"github.com/your-org/milkcart-backend/internal/domain/product"
	"github.com/your-org/milkcart-backend/internal/domain/subscription"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("Running database auto-migrations...")

	// Dependency order: base tables first
	models := []interface{}{
		&user.User{},
		&user.Address{},

		&product.Product{},
		&product.StockMovement{},

		&cart.CartItem{},

		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},

		&payment.Payment{},

		&subscription.Subscription{},
		&franchise.Franchise{},
	}

	for _, model := range models {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	log.Println("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates additional indexes not covered by struct tags
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_delivery_boy ON orders(delivery_boy_id)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number ON orders(order_number)",

		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",

		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

		"CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_payments_subscription ON payments(subscription_id)",
		"CREATE INDEX IF NOT EXISTS idx_payments_user_status ON payments(user_id, status)",

		"CREATE INDEX IF NOT EXISTS idx_products_type_active ON products(type, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id, created_at DESC)",

		"CREATE INDEX IF NOT EXISTS idx_cart_items_user ON cart_items(user_id)",

		"CREATE INDEX IF NOT EXISTS idx_subscriptions_user_status ON subscriptions(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions(status, next_delivery_date)",

		"CREATE INDEX IF NOT EXISTS idx_franchises_status ON franchises(status)",
	}

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("Failed to create index: %v", err)
		}
	}
	return nil
}

// SeedInitialData inserts development fixtures
func (m *Migration) SeedInitialData() error {
	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedProducts(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	return nil
}

func (m *Migration) seedAdminUser() error {
	var existing user.User
	if err := m.db.Where("email = ?", "admin@milkcart.local").First(&existing).Error; err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("Admin1234"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := user.User{
		Email:         "admin@milkcart.local",
		Password:      string(hash),
		FirstName:     "Admin",
		Role:          user.RoleAdmin,
		IsActive:      true,
		EmailVerified: true,
	}
	if err := m.db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	log.Println("Seeded admin user admin@milkcart.local")
	return nil
}

func (m *Migration) seedProducts() error {
	products := []product.Product{
		{
			SKU:      "COW-FULL-1L",
			Name:     "Cow Milk Full Cream 1L",
			Type:     product.MilkTypeCow,
			Variant:  "full_cream",
			PriceB2C: 6000,
			PriceB2B: 5200,
			Stock:    200,
			Unit:     "litre",
			IsActive: true,
		},
		{
			SKU:      "COW-TONED-1L",
			Name:     "Cow Milk Toned 1L",
			Type:     product.MilkTypeCow,
			Variant:  "toned",
			PriceB2C: 5000,
			PriceB2B: 4400,
			Stock:    200,
			Unit:     "litre",
			IsActive: true,
		},
		{
			SKU:      "BUF-FULL-1L",
			Name:     "Buffalo Milk 1L",
			Type:     product.MilkTypeBuffalo,
			Variant:  "full_cream",
			PriceB2C: 7000,
			PriceB2B: 6200,
			Stock:    150,
			Unit:     "litre",
			IsActive: true,
		},
	}

	for _, p := range products {
		var existing product.Product
		if err := m.db.Where("sku = ?", p.SKU).First(&existing).Error; err == nil {
			continue
		}
		if err := m.db.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.SKU, err)
		}
	}
	return nil
}
