package orders

import (
	"context"
	"errors"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

// UpdateStatus drives the order through the transition table. Cancellation
// goes through Cancel so inventory release happens exactly once.
func (s *Service) UpdateStatus(ctx context.Context, orderID primitive.ObjectID, target models.OrderStatus, in TransitionInput) (models.Order, error) {
	if target == models.OrderStatusCancelled {
		return s.Cancel(ctx, orderID, in.Reason)
	}
	return s.transition(ctx, orderID, target, in)
}

// Process moves a confirmed order into fulfillment.
func (s *Service) Process(ctx context.Context, orderID primitive.ObjectID) (models.Order, error) {
	return s.transition(ctx, orderID, models.OrderStatusProcessing, TransitionInput{})
}

// Ship marks the order shipped. The tracking number is required.
func (s *Service) Ship(ctx context.Context, orderID primitive.ObjectID, trackingNumber string) (models.Order, error) {
	return s.transition(ctx, orderID, models.OrderStatusShipped, TransitionInput{TrackingNumber: trackingNumber})
}

// Deliver marks the order delivered, a terminal state.
func (s *Service) Deliver(ctx context.Context, orderID primitive.ObjectID) (models.Order, error) {
	return s.transition(ctx, orderID, models.OrderStatusDelivered, TransitionInput{})
}

// Cancel is the unconditional admin cancellation entry point. Reserved stock
// is released best-effort before the status is committed; release failures
// are logged, never escalated.
func (s *Service) Cancel(ctx context.Context, orderID primitive.ObjectID, reason string) (models.Order, error) {
	released := false

	for attempt := 0; attempt < saveRetries; attempt++ {
		order, err := s.repo.Load(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}
		if order.Status == models.OrderStatusCancelled {
			return order, nil
		}

		if err := ApplyTransition(&order, models.OrderStatusCancelled, TransitionInput{Reason: reason}, s.now()); err != nil {
			return models.Order{}, err
		}

		// Release once, even if the save below needs a retry round.
		if !released {
			if result := s.stock.Release(ctx, &order); !result.OK() {
				log.Printf("[ORDER] [WARN] order %s cancelled with %d unreleased lines",
					order.OrderNumber, len(result.Failed))
			}
			released = true
		}

		err = s.repo.Save(ctx, &order)
		if err == nil {
			log.Printf("[ORDER] [INFO] order %s cancelled: %s", order.OrderNumber, order.CancelReason)
			return order, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return models.Order{}, err
		}
	}
	return models.Order{}, ErrVersionConflict
}

// CancelForUser cancels the order only if it belongs to the requesting user.
// An ownership mismatch reports not-found, not forbidden, so order ids leak
// nothing about other users.
func (s *Service) CancelForUser(ctx context.Context, userID, orderID primitive.ObjectID, reason string) (models.Order, error) {
	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != userID {
		return models.Order{}, NotFoundError{Resource: "order", Key: orderID.Hex()}
	}
	return s.Cancel(ctx, orderID, reason)
}

// transition is the shared optimistic read-modify-write loop for non-cancel
// status changes.
func (s *Service) transition(ctx context.Context, orderID primitive.ObjectID, target models.OrderStatus, in TransitionInput) (models.Order, error) {
	for attempt := 0; attempt < saveRetries; attempt++ {
		order, err := s.repo.Load(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}
		if order.Status == target {
			return order, nil
		}

		if err := ApplyTransition(&order, target, in, s.now()); err != nil {
			return models.Order{}, err
		}

		err = s.repo.Save(ctx, &order)
		if err == nil {
			log.Printf("[ORDER] [INFO] order %s moved to %s", order.OrderNumber, target)
			return order, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return models.Order{}, err
		}
	}
	return models.Order{}, ErrVersionConflict
}
