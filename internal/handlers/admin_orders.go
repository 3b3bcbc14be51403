package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
	"storefront/internal/orders"
)

type adminCreateOrderRequest struct {
	UserID string `json:"userId" binding:"required"`
	createOrderRequest
	TaxAmount      *string `json:"taxAmount"`
	ShippingAmount *string `json:"shippingAmount"`
	DiscountAmount *string `json:"discountAmount"`
}

type updateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber"`
	Reason         string `json:"reason"`
}

type shipOrderRequest struct {
	TrackingNumber string `json:"trackingNumber" binding:"required"`
}

type updateOrderRequest struct {
	PaymentMethod *string `json:"paymentMethod"`
	Note          *string `json:"note"`
}

// AdminCreateOrder places an order on behalf of a user. This is the only
// entry point that honors per-line unit price overrides.
func AdminCreateOrder(svc *orders.Service, db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		var req adminCreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		userID, err := primitive.ObjectIDFromHex(req.UserID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid userId")
			return
		}

		serviceReq, err := req.toServiceRequest(true)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		if req.TaxAmount != nil {
			amount, err := models.MoneyFromString(*req.TaxAmount)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid taxAmount")
				return
			}
			serviceReq.TaxOverride = &amount
		}
		if req.ShippingAmount != nil {
			amount, err := models.MoneyFromString(*req.ShippingAmount)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid shippingAmount")
				return
			}
			serviceReq.ShippingOverride = &amount
		}
		if req.DiscountAmount != nil {
			amount, err := models.MoneyFromString(*req.DiscountAmount)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid discountAmount")
				return
			}
			serviceReq.DiscountOverride = &amount
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

func ListOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid pagination params")
			return
		}

		var filter orders.ListFilter
		if userStr := strings.TrimSpace(c.Query("userId")); userStr != "" {
			userID, err := primitive.ObjectIDFromHex(userStr)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid userId")
				return
			}
			filter.UserID = &userID
		}
		if statusStr := strings.TrimSpace(c.Query("status")); statusStr != "" {
			status := models.OrderStatus(strings.ToUpper(statusStr))
			if !models.ValidOrderStatus(status) {
				respondWithError(c, http.StatusBadRequest, route, "invalid status")
				return
			}
			filter.Status = &status
		}
		if fromStr := strings.TrimSpace(c.Query("from")); fromStr != "" {
			from, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid from date")
				return
			}
			filter.From = &from
		}
		if toStr := strings.TrimSpace(c.Query("to")); toStr != "" {
			to, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid to date")
				return
			}
			filter.To = &to
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		result, total, err := svc.List(ctx, filter, page, limit)
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

func GetOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/:id"
		defer handlePanic(c, route)

		order, ok := loadOrderByParam(c, svc, route)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func UpdateOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/api/orders/:id"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req updateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.Update(ctx, orderID, orders.UpdateRequest{
			PaymentMethod: req.PaymentMethod,
			Note:          req.Note,
		})
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func UpdateOrderStatus(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/orders/:id/status"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		order, err := svc.UpdateStatus(ctx, orderID,
			models.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
			orders.TransitionInput{
				TrackingNumber: req.TrackingNumber,
				Reason:         req.Reason,
			})
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func ProcessOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/process"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.Process(ctx, orderID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func ShipOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/ship"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req shipOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "tracking number is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.Ship(ctx, orderID, req.TrackingNumber)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func DeliverOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/deliver"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.Deliver(ctx, orderID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

// CancelOrder is the unconditional admin cancellation.
func CancelOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/cancel"
		defer handlePanic(c, route)

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

		order, err := svc.Cancel(ctx, orderID, req.Reason)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

// OrderStats reports per-status counts and paid revenue for a date range.
func OrderStats(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/stats"
		defer handlePanic(c, route)

		to := time.Now()
		from := to.AddDate(0, -1, 0)
		if fromStr := strings.TrimSpace(c.Query("from")); fromStr != "" {
			parsed, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid from date")
				return
			}
			from = parsed
		}
		if toStr := strings.TrimSpace(c.Query("to")); toStr != "" {
			parsed, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid to date")
				return
			}
			to = parsed
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		counts := gin.H{}
		for _, status := range []models.OrderStatus{
			models.OrderStatusPending,
			models.OrderStatusConfirmed,
			models.OrderStatusProcessing,
			models.OrderStatusShipped,
			models.OrderStatusDelivered,
			models.OrderStatusCancelled,
			models.OrderStatusRefunded,
		} {
			count, err := svc.CountByStatus(ctx, status)
			if err != nil {
				respondServiceError(c, route, err)
				return
			}
			counts[string(status)] = count
		}

		revenue, err := svc.RevenueBetween(ctx, from, to)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"counts":  counts,
			"revenue": revenue,
			"from":    from,
			"to":      to,
		})
	}
}

func loadOrderByParam(c *gin.Context, svc *orders.Service, route string) (models.Order, bool) {
	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid id")
		return models.Order{}, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	order, err := svc.Get(ctx, orderID)
	if err != nil {
		respondServiceError(c, route, err)
		return models.Order{}, false
	}
	return order, true
}
