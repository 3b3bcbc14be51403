package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

func (s *Service) Get(ctx context.Context, orderID primitive.ObjectID) (models.Order, error) {
	return s.repo.Load(ctx, orderID)
}

func (s *Service) GetByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	return s.repo.LoadByNumber(ctx, orderNumber)
}

// GetForUser loads an order only if it belongs to the user; an ownership
// mismatch reports not-found.
func (s *Service) GetForUser(ctx context.Context, userID, orderID primitive.ObjectID) (models.Order, error) {
	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != userID {
		return models.Order{}, NotFoundError{Resource: "order", Key: orderID.Hex()}
	}
	return order, nil
}

// List returns one page of orders plus the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter, page, limit int64) ([]models.Order, int64, error) {
	return s.repo.List(ctx, filter, page, limit)
}

func (s *Service) ListByUser(ctx context.Context, userID primitive.ObjectID, page, limit int64) ([]models.Order, int64, error) {
	return s.repo.List(ctx, ListFilter{UserID: &userID}, page, limit)
}

func (s *Service) CountByStatus(ctx context.Context, status models.OrderStatus) (int64, error) {
	return s.repo.CountByStatus(ctx, status)
}

// RevenueBetween sums the total amount of paid orders created in the range.
func (s *Service) RevenueBetween(ctx context.Context, from, to time.Time) (models.Money, error) {
	return s.repo.RevenueBetween(ctx, from, to)
}
