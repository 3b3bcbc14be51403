package orders

import (
	"strings"
	"time"

	"storefront/internal/models"
)

// TransitionInput carries the per-transition required fields.
type TransitionInput struct {
	TrackingNumber string
	Reason         string
}

type transitionEffect struct {
	guard func(in TransitionInput) error
	apply func(o *models.Order, in TransitionInput, now time.Time)
}

// transitionTable maps (current, requested) to the validator and effect for
// that edge. Edges absent from the table are rejected; ApplyTransition is the
// single entry point that consults it.
var transitionTable = map[models.OrderStatus]map[models.OrderStatus]transitionEffect{
	models.OrderStatusPending: {
		models.OrderStatusConfirmed: {},
		models.OrderStatusCancelled: cancelEffect,
	},
	models.OrderStatusConfirmed: {
		models.OrderStatusProcessing: {},
		models.OrderStatusCancelled:  cancelEffect,
	},
	models.OrderStatusProcessing: {
		models.OrderStatusShipped:   shipEffect,
		models.OrderStatusCancelled: cancelEffect,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered: deliverEffect,
	},
}

var shipEffect = transitionEffect{
	guard: func(in TransitionInput) error {
		if strings.TrimSpace(in.TrackingNumber) == "" {
			return InvalidRequestError{Reason: "tracking number is required to ship an order"}
		}
		return nil
	},
	apply: func(o *models.Order, in TransitionInput, now time.Time) {
		o.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	},
}

var deliverEffect = transitionEffect{
	apply: func(o *models.Order, in TransitionInput, now time.Time) {
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	},
}

var cancelEffect = transitionEffect{
	guard: func(in TransitionInput) error {
		if strings.TrimSpace(in.Reason) == "" {
			return InvalidRequestError{Reason: "cancellation reason is required"}
		}
		return nil
	},
	apply: func(o *models.Order, in TransitionInput, now time.Time) {
		o.CancelReason = strings.TrimSpace(in.Reason)
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
		// A payment that never completed is cancelled along with the order.
		if o.PaymentStatus == models.PaymentStatusPending || o.PaymentStatus == models.PaymentStatusProcessing {
			o.PaymentStatus = models.PaymentStatusCancelled
		}
	},
}

// ApplyTransition moves the order to target, running the edge's validator and
// effect. A same-status request is a no-op success; any edge missing from the
// table fails with InvalidTransitionError naming both states.
func ApplyTransition(o *models.Order, target models.OrderStatus, in TransitionInput, now time.Time) error {
	if !models.ValidOrderStatus(target) {
		return InvalidRequestError{Reason: "unknown order status: " + string(target)}
	}
	if o.Status == target {
		return nil
	}
	effect, ok := transitionTable[o.Status][target]
	if !ok {
		return InvalidTransitionError{From: o.Status, To: target}
	}
	if effect.guard != nil {
		if err := effect.guard(in); err != nil {
			return err
		}
	}
	o.Status = target
	if effect.apply != nil {
		effect.apply(o, in, now)
	}
	o.UpdatedAt = now
	return nil
}
