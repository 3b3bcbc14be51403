package orders

import (
	"context"
	"errors"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/payment"
)

// InitializePayment produces an opaque payment handle for the order. It fails
// unless the payment status is still PENDING. It is not idempotent: each call
// yields a new handle, so callers must check status before re-initializing.
func (s *Service) InitializePayment(ctx context.Context, orderID primitive.ObjectID) (string, error) {
	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return "", InvalidRequestError{
			Reason: "payment already initialized: status is " + string(order.PaymentStatus),
		}
	}
	return s.gateway.Initialize(ctx, order.OrderNumber)
}

// ProcessPaymentRequest carries the payload of a direct payment attempt.
type ProcessPaymentRequest struct {
	Handle string
	Method string
}

// ProcessPayment charges the order through the gateway. On success the
// payment is marked PAID and a PENDING order auto-advances to CONFIRMED. On
// decline the FAILED payment status is persisted before the error is
// returned, so the failure is durably recorded.
func (s *Service) ProcessPayment(ctx context.Context, orderID primitive.ObjectID, req ProcessPaymentRequest) (models.Order, error) {
	order, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return models.Order{}, InvalidRequestError{Reason: "order is already paid"}
	}
	if order.Status == models.OrderStatusCancelled {
		return models.Order{}, InvalidRequestError{Reason: "cannot pay a cancelled order"}
	}

	transactionID, chargeErr := s.gateway.Charge(ctx, req.Handle, order.TotalAmount)
	if chargeErr != nil {
		if markErr := s.markPayment(ctx, order.ID, func(o *models.Order) {
			o.PaymentStatus = models.PaymentStatusFailed
		}); markErr != nil {
			log.Printf("[PAYMENT] [ERROR] could not record failed payment for order %s: %v",
				order.OrderNumber, markErr)
		}
		return models.Order{}, PaymentFailureError{OrderNumber: order.OrderNumber, Err: chargeErr}
	}

	method := strings.TrimSpace(req.Method)
	if err := s.markPayment(ctx, order.ID, func(o *models.Order) {
		s.settle(o, transactionID)
		if method != "" {
			o.PaymentMethod = method
		}
	}); err != nil {
		return models.Order{}, err
	}

	updated, err := s.repo.Load(ctx, order.ID)
	if err != nil {
		return models.Order{}, err
	}
	log.Printf("[PAYMENT] [INFO] order %s paid, transaction %s", updated.OrderNumber, transactionID)
	return updated, nil
}

// HandlePaymentCallback reconciles an asynchronous provider notification. It
// is idempotent and never fails on unexpected webhook content: unrecognized
// statuses are logged and ignored.
func (s *Service) HandlePaymentCallback(ctx context.Context, orderNumber, transactionID, status string) error {
	mapped, ok := payment.MapCallbackStatus(status)
	if !ok {
		log.Printf("[PAYMENT] [WARN] ignoring callback for order %s with unrecognized status %q",
			orderNumber, status)
		return nil
	}

	order, err := s.repo.LoadByNumber(ctx, orderNumber)
	if err != nil {
		return err
	}

	switch mapped {
	case models.PaymentStatusPaid:
		if order.PaymentStatus == models.PaymentStatusPaid {
			return nil
		}
		if order.Status == models.OrderStatusCancelled {
			log.Printf("[PAYMENT] [WARN] ignoring paid callback for cancelled order %s", orderNumber)
			return nil
		}
		return s.markPayment(ctx, order.ID, func(o *models.Order) {
			s.settle(o, transactionID)
		})
	case models.PaymentStatusFailed:
		if order.PaymentStatus == models.PaymentStatusPaid || order.PaymentStatus == models.PaymentStatusFailed {
			return nil
		}
		return s.markPayment(ctx, order.ID, func(o *models.Order) {
			o.PaymentStatus = models.PaymentStatusFailed
		})
	default: // PROCESSING
		if order.PaymentStatus != models.PaymentStatusPending {
			return nil
		}
		return s.markPayment(ctx, order.ID, func(o *models.Order) {
			o.PaymentStatus = models.PaymentStatusProcessing
		})
	}
}

// settle records a successful payment: PAID status, transaction id and paid
// timestamp set once, and a PENDING order auto-advanced to CONFIRMED.
func (s *Service) settle(o *models.Order, transactionID string) {
	now := s.now()
	o.PaymentStatus = models.PaymentStatusPaid
	if o.TransactionID == "" {
		o.TransactionID = transactionID
	}
	if o.PaidAt == nil {
		o.PaidAt = &now
	}
	if o.Status == models.OrderStatusPending {
		// Transition validated by the same table as direct status updates.
		if err := ApplyTransition(o, models.OrderStatusConfirmed, TransitionInput{}, now); err != nil {
			log.Printf("[PAYMENT] [ERROR] auto-advance failed for order %s: %v", o.OrderNumber, err)
		}
	}
}

// markPayment runs mutate inside the optimistic save loop.
func (s *Service) markPayment(ctx context.Context, orderID primitive.ObjectID, mutate func(*models.Order)) error {
	for attempt := 0; attempt < saveRetries; attempt++ {
		order, err := s.repo.Load(ctx, orderID)
		if err != nil {
			return err
		}

		mutate(&order)
		order.UpdatedAt = s.now()

		err = s.repo.Save(ctx, &order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return ErrVersionConflict
}
