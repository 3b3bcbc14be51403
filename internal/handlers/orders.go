package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
	"storefront/internal/orders"
)

/* =========================
   REQUEST DTOs
========================= */

type orderLineRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required"`
	UnitPrice *string `json:"unitPrice"`
}

type shippingRequest struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone"`
	Address    string `json:"address" binding:"required"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
}

type createOrderRequest struct {
	Items         []orderLineRequest `json:"items"`
	Shipping      shippingRequest    `json:"shipping" binding:"required"`
	PaymentMethod string             `json:"paymentMethod"`
	Note          string             `json:"note"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type applyDiscountRequest struct {
	Code string `json:"code" binding:"required"`
}

type processPaymentRequest struct {
	Handle string `json:"handle"`
	Method string `json:"method"`
}

type paymentCallbackRequest struct {
	OrderNumber   string `json:"orderNumber" binding:"required"`
	TransactionID string `json:"transactionId" binding:"required"`
	Status        string `json:"status" binding:"required"`
}

func (r createOrderRequest) toServiceRequest(allowPriceOverride bool) (orders.CreateRequest, error) {
	req := orders.CreateRequest{
		Shipping: models.ShippingInfo{
			Name:       r.Shipping.Name,
			Phone:      r.Shipping.Phone,
			Address:    r.Shipping.Address,
			City:       r.Shipping.City,
			Region:     r.Shipping.Region,
			PostalCode: r.Shipping.PostalCode,
		},
		PaymentMethod:      r.PaymentMethod,
		Note:               r.Note,
		AllowPriceOverride: allowPriceOverride,
	}

	for _, line := range r.Items {
		productID, err := primitive.ObjectIDFromHex(line.ProductID)
		if err != nil {
			return orders.CreateRequest{}, orders.InvalidRequestError{Reason: "invalid productId"}
		}
		lineReq := orders.LineRequest{ProductID: productID, Quantity: line.Quantity}
		if line.UnitPrice != nil {
			price, err := models.MoneyFromString(*line.UnitPrice)
			if err != nil {
				return orders.CreateRequest{}, orders.InvalidRequestError{Reason: "invalid unitPrice"}
			}
			lineReq.UnitPrice = &price
		}
		req.Items = append(req.Items, lineReq)
	}
	return req, nil
}

/* =========================
   USER ORDER ENDPOINTS
========================= */

func CreateOrder(svc *orders.Service, db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/orders"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		serviceReq, err := req.toServiceRequest(false)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		order, err := svc.Create(ctx, userID, serviceReq)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, order)
	}
}

func CreateOrderFromCart(svc *orders.Service, db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/orders/from-cart"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		serviceReq, err := req.toServiceRequest(false)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		order, err := svc.CreateFromCart(ctx, userID, serviceReq)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, order)
	}
}

func GetMyOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/orders"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid pagination params")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		result, total, err := svc.ListByUser(ctx, userID, page, limit)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":  result,
			"total": total,
			"page":  page,
			"limit": limit,
		})
	}
}

func GetMyOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/orders/:id"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.GetForUser(ctx, userID, orderID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func CancelMyOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/orders/:id/cancel"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req cancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "cancellation reason is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		order, err := svc.CancelForUser(ctx, userID, orderID, req.Reason)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func ApplyDiscount(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/orders/:id/discount"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req applyDiscountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "discount code is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		// Ownership check shares the not-found policy of the other
		// user-scoped order operations.
		if _, err := svc.GetForUser(ctx, userID, orderID); err != nil {
			respondServiceError(c, route, err)
			return
		}

		order, err := svc.ApplyDiscount(ctx, orderID, req.Code)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

/* =========================
   PAYMENT ENDPOINTS
========================= */

func InitializePayment(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/orders/:id/payment/init"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if _, err := svc.GetForUser(ctx, userID, orderID); err != nil {
			respondServiceError(c, route, err)
			return
		}

		handle, err := svc.InitializePayment(ctx, orderID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"handle": handle})
	}
}

func ProcessPayment(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /user/orders/:id/payment"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req processPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		// The simulated provider call blocks, so give it more room.
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		if _, err := svc.GetForUser(ctx, userID, orderID); err != nil {
			respondServiceError(c, route, err)
			return
		}

		order, err := svc.ProcessPayment(ctx, orderID, orders.ProcessPaymentRequest{
			Handle: req.Handle,
			Method: req.Method,
		})
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

// PaymentCallback is the inbound webhook from the payment provider. Its
// three-string contract (orderNumber, transactionId, status) is stable.
func PaymentCallback(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payments/callback"
		defer handlePanic(c, route)

		var req paymentCallbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		if err := svc.HandlePaymentCallback(ctx, req.OrderNumber, req.TransactionID, req.Status); err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "callback accepted"})
	}
}
