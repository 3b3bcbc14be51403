package models

import (
	"crypto/rand"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusCancelled         PaymentStatus = "CANCELLED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// allowedTransitions is the full order status graph. DELIVERED, CANCELLED and
// REFUNDED are terminal.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

func ValidOrderStatus(s OrderStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func IsTerminalStatus(s OrderStatus) bool {
	allowed, ok := allowedTransitions[s]
	return ok && len(allowed) == 0
}

// CanTransitionTo reports whether the order may move to target from its
// current status. A same-status transition is always allowed as a no-op.
func (o *Order) CanTransitionTo(target OrderStatus) bool {
	if o.Status == target {
		return true
	}
	for _, s := range allowedTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// OrderLine is a single product entry within an order. Name, SKU and Image are
// frozen at creation so the order stays readable after catalog changes.
type OrderLine struct {
	ProductID      primitive.ObjectID `bson:"productId" json:"productId"`
	Name           string             `bson:"name" json:"name"`
	SKU            string             `bson:"sku,omitempty" json:"sku,omitempty"`
	Image          string             `bson:"image,omitempty" json:"image,omitempty"`
	Quantity       int                `bson:"quantity" json:"quantity"`
	UnitPrice      Money              `bson:"unitPrice" json:"unitPrice"`
	DiscountAmount Money              `bson:"discountAmount" json:"discountAmount"`
	TotalPrice     Money              `bson:"totalPrice" json:"totalPrice"`
}

// ShippingInfo is the destination snapshot captured at order creation.
type ShippingInfo struct {
	Name       string `bson:"name" json:"name"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
	Address    string `bson:"address" json:"address"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	Region     string `bson:"region,omitempty" json:"region,omitempty"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber   string             `bson:"orderNumber" json:"orderNumber"`
	UserID        primitive.ObjectID `bson:"userId" json:"userId"`
	Status        OrderStatus        `bson:"status" json:"status"`
	PaymentStatus PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`

	Items []OrderLine `bson:"items" json:"items"`

	Subtotal       Money `bson:"subtotal" json:"subtotal"`
	TaxAmount      Money `bson:"taxAmount" json:"taxAmount"`
	ShippingAmount Money `bson:"shippingAmount" json:"shippingAmount"`
	DiscountAmount Money `bson:"discountAmount" json:"discountAmount"`
	TotalAmount    Money `bson:"totalAmount" json:"totalAmount"`

	Shipping ShippingInfo `bson:"shipping" json:"shipping"`

	PaymentMethod  string `bson:"paymentMethod" json:"paymentMethod"`
	TransactionID  string `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	TrackingNumber string `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	CancelReason   string `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	Note           string `bson:"note,omitempty" json:"note,omitempty"`

	PaidAt      *time.Time `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	ShippedAt   *time.Time `bson:"shippedAt,omitempty" json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`

	// Version guards the read-modify-write cycle; every save matches the
	// loaded value and increments it.
	Version int64 `bson:"version" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

const orderNumberPrefix = "ORD"

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderNumber builds a globally unique human-readable order number:
// fixed prefix + timestamp + 6 random characters.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		for i := range suffix {
			suffix[i] = orderNumberAlphabet[(now.UnixNano()>>uint(i*5))%int64(len(orderNumberAlphabet))]
		}
	} else {
		for i, b := range suffix {
			suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
		}
	}
	return orderNumberPrefix + now.Format("20060102150405") + string(suffix)
}
