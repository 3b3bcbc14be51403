package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"storefront/internal/inventory"
	"storefront/internal/orders"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func ensureDBConnection(ctx context.Context, db *mongo.Database) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Client().Ping(checkCtx, readpref.Primary())
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondServiceError maps each domain error kind to its response code so the
// transport never leaks a generic 500 for a business failure.
func respondServiceError(c *gin.Context, route string, err error) {
	var notFound orders.NotFoundError
	if errors.As(err, &notFound) {
		respondWithError(c, http.StatusNotFound, route, notFound.Error())
		return
	}

	var stockErr inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		log.Printf("[%s] returning error %d: %s", route, http.StatusConflict, stockErr.Error())
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":     "insufficient stock",
			"productId": stockErr.ProductID.Hex(),
			"product":   stockErr.Name,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
		return
	}

	var invalidTransition orders.InvalidTransitionError
	if errors.As(err, &invalidTransition) {
		respondWithError(c, http.StatusConflict, route, invalidTransition.Error())
		return
	}

	var limitErr orders.LimitExceededError
	if errors.As(err, &limitErr) {
		respondWithError(c, http.StatusUnprocessableEntity, route, limitErr.Error())
		return
	}

	var paymentErr orders.PaymentFailureError
	if errors.As(err, &paymentErr) {
		respondWithError(c, http.StatusPaymentRequired, route, paymentErr.Error())
		return
	}

	var invalidReq orders.InvalidRequestError
	if errors.As(err, &invalidReq) {
		respondWithError(c, http.StatusBadRequest, route, invalidReq.Error())
		return
	}

	if errors.Is(err, orders.ErrVersionConflict) {
		respondWithError(c, http.StatusConflict, route, "order was modified concurrently, retry")
		return
	}

	log.Printf("[%s] unexpected error: %v", route, err)
	respondWithError(c, http.StatusInternalServerError, route, "internal error")
}

func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, ok := c.Get("userId")
	if !ok {
		return primitive.NilObjectID, false
	}
	userID, ok := value.(primitive.ObjectID)
	return userID, ok
}

var errBadPagination = errors.New("invalid pagination params")

func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := int64(20)

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return 0, 0, errBadPagination
		}
		page = p
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 {
			return 0, 0, errBadPagination
		}
		limit = l
	}

	return page, limit, nil
}
