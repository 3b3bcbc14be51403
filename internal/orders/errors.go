package orders

import (
	"errors"
	"fmt"

	"storefront/internal/models"
)

// ErrVersionConflict signals that the order document changed between load and
// save. Callers retry the whole read-modify-write cycle.
var ErrVersionConflict = errors.New("order was modified concurrently")

// NotFoundError covers lookups by id or natural key for any resource kind.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// InvalidRequestError covers malformed or business-rule-violating input.
type InvalidRequestError struct {
	Reason string
}

func (e InvalidRequestError) Error() string {
	return e.Reason
}

// InvalidTransitionError names both states of a rejected status change.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// LimitExceededError covers the item-count, per-line quantity and order
// amount ceilings.
type LimitExceededError struct {
	Limit  string
	Max    string
	Actual string
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: max %s, got %s", e.Limit, e.Max, e.Actual)
}

// PaymentFailureError wraps a failed payment attempt or reconciliation. The
// order's payment status is set to FAILED before this error is returned.
type PaymentFailureError struct {
	OrderNumber string
	Err         error
}

func (e PaymentFailureError) Error() string {
	return fmt.Sprintf("payment failed for order %s: %v", e.OrderNumber, e.Err)
}

func (e PaymentFailureError) Unwrap() error {
	return e.Err
}
