package payment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront/internal/models"
)

func TestMapCallbackStatus(t *testing.T) {
	tests := []struct {
		external string
		want     models.PaymentStatus
		ok       bool
	}{
		{"SUCCESS", models.PaymentStatusPaid, true},
		{"COMPLETED", models.PaymentStatusPaid, true},
		{"PAID", models.PaymentStatusPaid, true},
		{"completed", models.PaymentStatusPaid, true},
		{"  Paid  ", models.PaymentStatusPaid, true},
		{"FAILED", models.PaymentStatusFailed, true},
		{"CANCELLED", models.PaymentStatusFailed, true},
		{"DECLINED", models.PaymentStatusFailed, true},
		{"PENDING", models.PaymentStatusProcessing, true},
		{"PROCESSING", models.PaymentStatusProcessing, true},
		{"REFUND_REQUESTED", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := MapCallbackStatus(tt.external)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("MapCallbackStatus(%q) = (%q, %v), want (%q, %v)",
				tt.external, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSimulatedGatewayChargeAlwaysSucceedsAtFullRate(t *testing.T) {
	gateway := NewSimulatedGateway(0, 1.0)
	for i := 0; i < 20; i++ {
		txn, err := gateway.Charge(context.Background(), "PAY-1", models.MustMoney("10.00"))
		if err != nil {
			t.Fatalf("charge %d failed at success rate 1.0: %v", i, err)
		}
		if !strings.HasPrefix(txn, "TXN-") {
			t.Fatalf("unexpected transaction id %q", txn)
		}
	}
}

func TestSimulatedGatewayChargeAlwaysDeclinesAtZeroRate(t *testing.T) {
	gateway := NewSimulatedGateway(0, 0)
	for i := 0; i < 20; i++ {
		_, err := gateway.Charge(context.Background(), "PAY-1", models.MustMoney("10.00"))
		if !errors.Is(err, ErrChargeDeclined) {
			t.Fatalf("charge %d: expected ErrChargeDeclined, got %v", i, err)
		}
	}
}

func TestSimulatedGatewayChargeHonorsContext(t *testing.T) {
	gateway := NewSimulatedGateway(time.Minute, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gateway.Charge(ctx, "PAY-1", models.MustMoney("10.00"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSimulatedGatewayInitializeHandlesDiffer(t *testing.T) {
	gateway := NewSimulatedGateway(0, 1.0)
	first, err := gateway.Initialize(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	second, err := gateway.Initialize(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !strings.HasPrefix(first, "PAY-ORD1-") {
		t.Fatalf("unexpected handle %q", first)
	}
	if first == second {
		t.Fatal("handles must be unique per call")
	}
}

func TestSimulatedGatewayVerify(t *testing.T) {
	gateway := NewSimulatedGateway(0, 1.0)
	if err := gateway.Verify(context.Background(), "TXN-1"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := gateway.Verify(context.Background(), "  "); err == nil {
		t.Fatal("expected an error for a blank transaction id")
	}
}
