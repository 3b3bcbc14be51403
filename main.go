package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/inventory"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"
)

func main() {
	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}

	db := client.Database(config.AppEnv.DBName)

	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureProductIndexes(db); err != nil {
		log.Printf("product index warning: %v", err)
	}
	if err := database.EnsureUserIndexes(db); err != nil {
		log.Printf("user index warning: %v", err)
	}
	if err := database.EnsureOrderIndexes(db); err != nil {
		log.Printf("order index warning: %v", err)
	}
	if err := database.EnsureCartIndexes(db); err != nil {
		log.Printf("cart index warning: %v", err)
	}

	users := repository.NewUserStore(db)
	products := repository.NewProductStore(db)
	carts := repository.NewCartStore(db)
	orderRepo := repository.NewOrderRepository(db)

	rules := pricing.DefaultRules()
	if rate, err := decimal.NewFromString(config.AppEnv.DefaultTaxRate); err == nil {
		rules.DefaultTaxRate = rate
	}
	if flat, err := models.MoneyFromString(config.AppEnv.FlatShippingRate); err == nil {
		rules.FlatShipping = flat
	}
	if threshold, err := models.MoneyFromString(config.AppEnv.FreeShippingThreshold); err == nil {
		rules.FreeShippingMin = threshold
	}

	limits := orders.DefaultLimits()
	limits.MaxLinesPerOrder = config.AppEnv.MaxLinesPerOrder
	limits.MaxQuantityPerLine = config.AppEnv.MaxQuantityPerLine
	if maxAmount, err := models.MoneyFromString(config.AppEnv.MaxOrderAmount); err == nil {
		limits.MaxOrderAmount = maxAmount
	}

	gateway := payment.NewSimulatedGateway(config.AppEnv.PaymentDelay, config.AppEnv.PaymentSuccessRate)
	stock := inventory.NewCoordinator(products)

	orderService := orders.NewService(users, products, carts, orderRepo, stock, gateway, rules, limits)

	r := gin.Default()

	r.POST("/auth/register", handlers.Register(users, config.AppEnv.JWTSecret, config.AppEnv.AccessTokenTTL))
	r.POST("/auth/login", handlers.Login(users, config.AppEnv.JWTSecret, config.AppEnv.AccessTokenTTL))
	r.GET("/auth/me", middleware.UserAuth(config.AppEnv.JWTSecret), handlers.GetMe(users))

	r.GET("/products", handlers.GetProducts(products))
	r.GET("/products/:id", handlers.GetProductByID(products))

	r.POST("/payments/callback", handlers.PaymentCallback(orderService))

	user := r.Group("/user")
	user.Use(middleware.UserAuth(config.AppEnv.JWTSecret))
	{
		user.GET("/cart", handlers.GetCart(carts))
		user.PUT("/cart", handlers.PutCart(carts))
		user.DELETE("/cart", handlers.ClearCart(carts))

		user.POST("/orders", handlers.CreateOrder(orderService, db))
		user.POST("/orders/from-cart", handlers.CreateOrderFromCart(orderService, db))
		user.GET("/orders", handlers.GetMyOrders(orderService))
		user.GET("/orders/:id", handlers.GetMyOrder(orderService))
		user.POST("/orders/:id/cancel", handlers.CancelMyOrder(orderService))
		user.POST("/orders/:id/discount", handlers.ApplyDiscount(orderService))
		user.POST("/orders/:id/payment/init", handlers.InitializePayment(orderService))
		user.POST("/orders/:id/payment", handlers.ProcessPayment(orderService))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(config.AppEnv.JWTSecret))
	{
		admin.GET("/me", func(c *gin.Context) {
			c.JSON(200, gin.H{"ok": true})
		})

		admin.POST("/products", handlers.CreateProduct(products))
		admin.PUT("/products/:id", handlers.UpdateProduct(products))
		admin.DELETE("/products/:id", handlers.DeleteProduct(products))

		admin.GET("/orders", handlers.ListOrders(orderService))
		admin.GET("/orders/stats", handlers.OrderStats(orderService))
		admin.POST("/orders", handlers.AdminCreateOrder(orderService, db))
		admin.GET("/orders/:id", handlers.GetOrder(orderService))
		admin.PATCH("/orders/:id", handlers.UpdateOrder(orderService))
		admin.PUT("/orders/:id/status", handlers.UpdateOrderStatus(orderService))
		admin.POST("/orders/:id/process", handlers.ProcessOrder(orderService))
		admin.POST("/orders/:id/ship", handlers.ShipOrder(orderService))
		admin.POST("/orders/:id/deliver", handlers.DeliverOrder(orderService))
		admin.POST("/orders/:id/cancel", handlers.CancelOrder(orderService))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}
