// Package payment wraps the external payment provider behind a capability
// interface so orchestration logic never touches randomness or delays
// directly.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
)

// ErrChargeDeclined is returned by Charge when the provider declines the
// payment attempt.
var ErrChargeDeclined = errors.New("payment declined by provider")

// Gateway is the capability interface for the payment provider.
type Gateway interface {
	// Initialize produces an opaque payment handle for the order. It is not
	// idempotent: calling twice yields two handles.
	Initialize(ctx context.Context, orderNumber string) (string, error)
	// Charge attempts the payment and returns a transaction id on success.
	Charge(ctx context.Context, handle string, amount models.Money) (string, error)
	// Verify checks a transaction id with the provider.
	Verify(ctx context.Context, transactionID string) error
}

// SimulatedGateway models a real provider with a fixed network delay and a
// high but non-unit success probability.
type SimulatedGateway struct {
	Delay       time.Duration
	SuccessRate float64
}

func NewSimulatedGateway(delay time.Duration, successRate float64) *SimulatedGateway {
	return &SimulatedGateway{Delay: delay, SuccessRate: successRate}
}

func (g *SimulatedGateway) Initialize(ctx context.Context, orderNumber string) (string, error) {
	return fmt.Sprintf("PAY-%s-%d", orderNumber, time.Now().UnixNano()), nil
}

func (g *SimulatedGateway) Charge(ctx context.Context, handle string, amount models.Money) (string, error) {
	timer := time.NewTimer(g.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if rand.Float64() >= g.SuccessRate {
		return "", ErrChargeDeclined
	}
	return "TXN-" + uuid.NewString(), nil
}

func (g *SimulatedGateway) Verify(ctx context.Context, transactionID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return errors.New("empty transaction id")
	}
	return nil
}

// MapCallbackStatus translates the external provider's status vocabulary to
// the internal payment status set. ok=false means the external status is
// unrecognized and the callback should be ignored.
func MapCallbackStatus(external string) (models.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case "SUCCESS", "COMPLETED", "PAID":
		return models.PaymentStatusPaid, true
	case "FAILED", "CANCELLED", "DECLINED":
		return models.PaymentStatusFailed, true
	case "PENDING", "PROCESSING":
		return models.PaymentStatusProcessing, true
	default:
		return "", false
	}
}
