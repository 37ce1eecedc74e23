// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/analytics"
	"github.com/your-org/milkcart-backend/internal/domain/cart"
	"github.com/your-org/milkcart-backend/internal/domain/franchise"
	"github.com/your-org/milkcart-backend/internal/domain/order"
	"github.com/your-org/milkcart-backend/internal/domain/subscription"
	"github.com/your-org/milkcart-backend/internal/domain/user"
	"github.com/your-org/milkcart-backend/internal/interfaces/http/handlers"
	"github.com/your-org/milkcart-backend/internal/interfaces/http/middleware"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/gorm"
)

// SetupRoutes wires all API routes. Services are built once here and
// shared across handlers.
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log *logrus.Logger) {
	publisher := events.NewRedisPublisher(redisClient)

	cartService := cart.NewService(db, redisClient, cfg)
	orderService := order.NewService(db, cfg, cartService, publisher, log)
	subscriptionService := subscription.NewService(db, publisher, log)
	franchiseService := franchise.NewService(db, publisher, log)
	analyticsService := analytics.NewService(db)

	authHandler := handlers.NewAuthHandler(db, cartService, cfg, log)
	addressHandler := handlers.NewUserAddressHandler(db)
	userAdminHandler := handlers.NewUserAdminHandler(db, cfg)
	productHandler := handlers.NewProductHandler(db, cfg)
	cartHandler := handlers.NewCartHandler(db, cartService)
	orderHandler := handlers.NewOrderHandler(orderService)
	deliveryHandler := handlers.NewDeliveryHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(db, orderService, cfg, log)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
	franchiseHandler := handlers.NewFranchiseHandler(franchiseService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	invoiceHandler := handlers.NewInvoiceHandler(orderService, cfg)

	// Auth
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)

		protected := authGroup.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.GET("/me", authHandler.Profile)
			protected.PUT("/me", authHandler.UpdateProfile)
		}
	}

	// Catalog (public)
	products := rg.Group("/products")
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
	}

	// Cart (guests and users)
	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.POST("/items", cartHandler.AddItem)
		cartGroup.PUT("/items/:productId", cartHandler.UpdateItem)
		cartGroup.DELETE("", cartHandler.ClearCart)
	}

	// Orders (authenticated customers)
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.POST("", orderHandler.CreateOrder)
		orders.GET("", orderHandler.GetOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.GET("/:id/invoice", invoiceHandler.GenerateInvoice)
		orders.PUT("/:id/cancel", orderHandler.CancelOrder)
		orders.PUT("/:id/cancel-item/:itemId", orderHandler.CancelItem)
		orders.DELETE("/:id", orderHandler.DeleteOrder)
	}

	// Payment
	paymentGroup := rg.Group("/payment")
	paymentGroup.Use(middleware.AuthMiddleware(cfg))
	{
		paymentGroup.POST("/initiate", paymentHandler.Initiate)
		paymentGroup.POST("/verify", paymentHandler.Verify)
	}
	rg.POST("/webhooks/payment", paymentHandler.Webhook)

	// Subscriptions
	subscriptions := rg.Group("/subscriptions")
	subscriptions.Use(middleware.AuthMiddleware(cfg))
	{
		subscriptions.POST("", subscriptionHandler.Create)
		subscriptions.GET("", subscriptionHandler.List)
		subscriptions.PUT("/:id/cancel", subscriptionHandler.Cancel)
	}

	// Franchise applications
	franchiseGroup := rg.Group("/franchise")
	franchiseGroup.Use(middleware.AuthMiddleware(cfg))
	{
		franchiseGroup.POST("/apply", franchiseHandler.Apply)
		franchiseGroup.GET("/me", franchiseHandler.MyApplication)
	}

	// Addresses
	addresses := rg.Group("/addresses")
	addresses.Use(middleware.AuthMiddleware(cfg))
	{
		addresses.GET("", addressHandler.List)
		addresses.POST("", addressHandler.Create)
		addresses.PUT("/:id", addressHandler.Update)
		addresses.DELETE("/:id", addressHandler.Delete)
	}

	// Delivery actor queue
	delivery := rg.Group("/delivery")
	delivery.Use(middleware.AuthMiddleware(cfg), middleware.RequireCapability(user.CapTakeOrder))
	{
		delivery.GET("/orders", deliveryHandler.GetQueue)
		delivery.PUT("/orders/:id/take", deliveryHandler.TakeOrder)
		delivery.PUT("/orders/:id/status", deliveryHandler.UpdateStatus)
	}

	// Admin and mediator console
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	{
		catalog := admin.Group("/products")
		catalog.Use(middleware.RequireCapability(user.CapManageCatalog))
		{
			catalog.POST("", productHandler.CreateProduct)
			catalog.PUT("/:id", productHandler.UpdateProduct)
			catalog.DELETE("/:id", productHandler.DeactivateProduct)
			catalog.POST("/:id/restock", productHandler.Restock)
			catalog.GET("/:id/movements", productHandler.GetStockMovements)
		}

		adminOrders := admin.Group("/orders")
		adminOrders.Use(middleware.RequireCapability(user.CapUpdateOrderState))
		{
			adminOrders.GET("", orderHandler.AdminGetOrders)
			adminOrders.PUT("/:id/status", orderHandler.UpdateStatus)
			adminOrders.PUT("/:id/assign-delivery", orderHandler.AssignDelivery)
		}

		adminSubscriptions := admin.Group("/subscriptions")
		adminSubscriptions.Use(middleware.RequireCapability(user.CapManageCatalog))
		{
			adminSubscriptions.PUT("/:id/status", subscriptionHandler.AdminUpdateStatus)
		}

		adminFranchises := admin.Group("/franchises")
		adminFranchises.Use(middleware.RequireCapability(user.CapManageFranchise))
		{
			adminFranchises.GET("", franchiseHandler.AdminList)
			adminFranchises.PUT("/:id/approve", franchiseHandler.Approve)
			adminFranchises.PUT("/:id/reject", franchiseHandler.Reject)
			adminFranchises.PUT("/:id/activate", franchiseHandler.Activate)
		}

		adminAnalytics := admin.Group("/analytics")
		adminAnalytics.Use(middleware.RequireCapability(user.CapViewAnalytics))
		{
			adminAnalytics.GET("/dashboard", analyticsHandler.Dashboard)
			adminAnalytics.GET("/top-products", analyticsHandler.TopProducts)
		}

		adminUsers := admin.Group("")
		adminUsers.Use(middleware.RequireRole(user.RoleAdmin))
		{
			adminUsers.PUT("/users/:id/role", userAdminHandler.SetRole)
			adminUsers.GET("/delivery-agents", userAdminHandler.ListDeliveryAgents)
		}
	}
}
