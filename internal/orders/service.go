// Package orders owns the order lifecycle: creation, status transitions,
// payment reconciliation and discount application. It is the only entry point
// the transport layer calls; persistence, catalog, users and the cart are
// reached through the collaborator interfaces below.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/inventory"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/pricing"
)

// UserStore resolves the acting user.
type UserStore interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// ProductStore resolves catalog products for line building.
type ProductStore interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	HasStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
}

// CartStore gives access to the user's current cart.
type CartStore interface {
	GetLines(ctx context.Context, userID primitive.ObjectID) ([]models.CartItem, error)
	IsEmpty(ctx context.Context, userID primitive.ObjectID) (bool, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

// ListFilter narrows order queries for search and reporting.
type ListFilter struct {
	UserID *primitive.ObjectID
	Status *models.OrderStatus
	From   *time.Time
	To     *time.Time
}

// Repository persists orders. Save must reject writes whose in-memory version
// no longer matches the stored document with ErrVersionConflict.
type Repository interface {
	Insert(ctx context.Context, order *models.Order) error
	Load(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	LoadByNumber(ctx context.Context, orderNumber string) (models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	List(ctx context.Context, filter ListFilter, page, limit int64) ([]models.Order, int64, error)
	CountByStatus(ctx context.Context, status models.OrderStatus) (int64, error)
	RevenueBetween(ctx context.Context, from, to time.Time) (models.Money, error)
}

// Limits are the business-rule ceilings applied at order creation.
type Limits struct {
	MaxLinesPerOrder   int
	MaxQuantityPerLine int
	MaxOrderAmount     models.Money
}

func DefaultLimits() Limits {
	return Limits{
		MaxLinesPerOrder:   50,
		MaxQuantityPerLine: 99,
		MaxOrderAmount:     models.MustMoney("10000.00"),
	}
}

// saveRetries bounds the optimistic-conflict retry loop on transitions.
const saveRetries = 2

type Service struct {
	users    UserStore
	products ProductStore
	carts    CartStore
	repo     Repository
	stock    *inventory.Coordinator
	gateway  payment.Gateway
	rules    pricing.Rules
	limits   Limits
	now      func() time.Time
}

func NewService(
	users UserStore,
	products ProductStore,
	carts CartStore,
	repo Repository,
	stock *inventory.Coordinator,
	gateway payment.Gateway,
	rules pricing.Rules,
	limits Limits,
) *Service {
	return &Service{
		users:    users,
		products: products,
		carts:    carts,
		repo:     repo,
		stock:    stock,
		gateway:  gateway,
		rules:    rules,
		limits:   limits,
		now:      time.Now,
	}
}

// LineRequest is one requested (product, quantity) pair. UnitPrice is the
// admin price override; it is honored only when the request allows overrides.
type LineRequest struct {
	ProductID primitive.ObjectID
	Quantity  int
	UnitPrice *models.Money
}

// CreateRequest describes a new order. Tax, shipping and discount overrides
// replace the computed amounts when present.
type CreateRequest struct {
	Items         []LineRequest
	Shipping      models.ShippingInfo
	PaymentMethod string
	Note          string

	TaxOverride      *models.Money
	ShippingOverride *models.Money
	DiscountOverride *models.Money

	// AllowPriceOverride must only be set by admin-facing transport. It lets
	// a line carry an arbitrary unit price instead of the catalog price.
	AllowPriceOverride bool
}

// Create builds and persists an order from explicit line items. If inventory
// reservation fails after the order was persisted, the persisted PENDING
// order is returned together with the error; it is the caller's
// responsibility to cancel it.
func (s *Service) Create(ctx context.Context, userID primitive.ObjectID, req CreateRequest) (models.Order, error) {
	return s.create(ctx, userID, req)
}

// CreateFromCart builds an order from the user's current cart, pricing every
// line at the product's current price, and clears the cart on success. Like
// Create, a reservation failure returns the persisted PENDING order alongside
// the error.
func (s *Service) CreateFromCart(ctx context.Context, userID primitive.ObjectID, req CreateRequest) (models.Order, error) {
	if len(req.Items) != 0 {
		return models.Order{}, InvalidRequestError{Reason: "cart orders must not carry explicit items"}
	}

	empty, err := s.carts.IsEmpty(ctx, userID)
	if err != nil {
		return models.Order{}, err
	}
	if empty {
		return models.Order{}, InvalidRequestError{Reason: "cart is empty"}
	}

	items, err := s.carts.GetLines(ctx, userID)
	if err != nil {
		return models.Order{}, err
	}

	req.Items = make([]LineRequest, 0, len(items))
	for _, item := range items {
		req.Items = append(req.Items, LineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	// Cart contents never carry price overrides.
	req.AllowPriceOverride = false

	order, err := s.create(ctx, userID, req)
	if err != nil {
		return order, err
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		log.Printf("[ORDER] [ERROR] cart clear failed for user %s after order %s: %v",
			userID.Hex(), order.OrderNumber, err)
	}
	return order, nil
}

func (s *Service) create(ctx context.Context, userID primitive.ObjectID, req CreateRequest) (models.Order, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return models.Order{}, err
	}
	if !user.IsActive {
		return models.Order{}, InvalidRequestError{Reason: "user account is inactive"}
	}

	if len(req.Items) == 0 {
		return models.Order{}, InvalidRequestError{Reason: "at least one item is required"}
	}

	if strings.TrimSpace(req.Shipping.Name) == "" || strings.TrimSpace(req.Shipping.Address) == "" {
		return models.Order{}, InvalidRequestError{Reason: "shipping name and address are required"}
	}

	if len(req.Items) > s.limits.MaxLinesPerOrder {
		return models.Order{}, LimitExceededError{
			Limit:  "order line count",
			Max:    strconv.Itoa(s.limits.MaxLinesPerOrder),
			Actual: strconv.Itoa(len(req.Items)),
		}
	}

	lines, err := s.resolveLines(ctx, req)
	if err != nil {
		return models.Order{}, err
	}

	subtotal := s.rules.Subtotal(lines)
	if subtotal.GreaterThan(s.limits.MaxOrderAmount) {
		return models.Order{}, LimitExceededError{
			Limit:  "order amount",
			Max:    s.limits.MaxOrderAmount.String(),
			Actual: subtotal.String(),
		}
	}

	now := s.now()

	tax := s.rules.Tax(subtotal, req.Shipping.Region)
	if req.TaxOverride != nil {
		tax = req.TaxOverride.Round()
	}
	shipping := s.rules.Shipping(subtotal, req.Shipping.Region)
	if req.ShippingOverride != nil {
		shipping = req.ShippingOverride.Round()
	}
	discount := models.ZeroMoney()
	if req.DiscountOverride != nil {
		discount = req.DiscountOverride.Round()
	}
	if tax.IsNegative() || shipping.IsNegative() || discount.IsNegative() {
		return models.Order{}, InvalidRequestError{Reason: "amount overrides must not be negative"}
	}
	// The discount can never push the total below zero.
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	order := models.Order{
		OrderNumber:    models.NewOrderNumber(now),
		UserID:         userID,
		Status:         models.OrderStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		Items:          lines,
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		DiscountAmount: discount,
		TotalAmount:    s.rules.Total(subtotal, tax, shipping, discount),
		Shipping:       req.Shipping,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		Note:           strings.TrimSpace(req.Note),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, &order); err != nil {
		return models.Order{}, err
	}

	if err := s.stock.Reserve(ctx, &order); err != nil {
		// The order stays persisted in PENDING; no automatic rollback.
		log.Printf("[ORDER] [ERROR] reservation failed for order %s: %v", order.OrderNumber, err)
		return order, err
	}

	log.Printf("[ORDER] [INFO] order %s created for user %s (%d lines, total %s)",
		order.OrderNumber, userID.Hex(), len(order.Items), order.TotalAmount)
	return order, nil
}

func (s *Service) resolveLines(ctx context.Context, req CreateRequest) ([]models.OrderLine, error) {
	lines := make([]models.OrderLine, 0, len(req.Items))

	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, InvalidRequestError{Reason: "quantity must be at least 1"}
		}
		if item.Quantity > s.limits.MaxQuantityPerLine {
			return nil, LimitExceededError{
				Limit:  "line quantity",
				Max:    strconv.Itoa(s.limits.MaxQuantityPerLine),
				Actual: strconv.Itoa(item.Quantity),
			}
		}

		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product.IsDeleted || !product.IsActive {
			return nil, InvalidRequestError{Reason: fmt.Sprintf("product %s is not available", product.Name)}
		}

		// Pre-check against current stock; the reservation itself is the
		// atomic conditional decrement.
		inStock, err := s.products.HasStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !inStock {
			return nil, inventory.InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.Stock,
			}
		}

		unitPrice := product.EffectivePrice()
		if item.UnitPrice != nil && req.AllowPriceOverride {
			if item.UnitPrice.IsNegative() {
				return nil, InvalidRequestError{Reason: "unit price override must not be negative"}
			}
			unitPrice = *item.UnitPrice
		}

		lines = append(lines, models.OrderLine{
			ProductID:      product.ID,
			Name:           product.Name,
			SKU:            product.SKU,
			Image:          product.ImagePath,
			Quantity:       item.Quantity,
			UnitPrice:      unitPrice,
			DiscountAmount: models.ZeroMoney(),
			TotalPrice:     unitPrice.MulInt(item.Quantity),
		})
	}

	return lines, nil
}

// UpdateRequest carries the non-status fields an order update may change.
// The shipping snapshot is immutable after creation.
type UpdateRequest struct {
	PaymentMethod *string
	Note          *string
}

// Update changes non-status fields on a non-terminal order.
func (s *Service) Update(ctx context.Context, orderID primitive.ObjectID, req UpdateRequest) (models.Order, error) {
	for attempt := 0; attempt < saveRetries; attempt++ {
		order, err := s.repo.Load(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}
		if models.IsTerminalStatus(order.Status) {
			return models.Order{}, InvalidRequestError{Reason: "order is in a terminal status"}
		}

		if req.PaymentMethod != nil {
			order.PaymentMethod = strings.TrimSpace(*req.PaymentMethod)
		}
		if req.Note != nil {
			order.Note = strings.TrimSpace(*req.Note)
		}
		order.UpdatedAt = s.now()

		err = s.repo.Save(ctx, &order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return models.Order{}, err
		}
	}
	return models.Order{}, ErrVersionConflict
}

type discountRule struct {
	percent decimal.Decimal
	flat    models.Money
}

// discountCodes is the fixed discount table. Unknown codes are a no-op.
var discountCodes = map[string]discountRule{
	"SAVE10": {percent: decimal.RequireFromString("10")},
	"SAVE20": {percent: decimal.RequireFromString("20")},
	"FLAT50": {flat: models.MustMoney("50.00")},
}

// ApplyDiscount looks up the code, recomputes the discount and total and
// persists the order. An invalid code leaves the order unchanged and returns
// no error.
func (s *Service) ApplyDiscount(ctx context.Context, orderID primitive.ObjectID, code string) (models.Order, error) {
	rule, known := discountCodes[strings.ToUpper(strings.TrimSpace(code))]

	for attempt := 0; attempt < saveRetries; attempt++ {
		order, err := s.repo.Load(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}
		if !known {
			return order, nil
		}
		if order.PaymentStatus == models.PaymentStatusPaid {
			return models.Order{}, InvalidRequestError{Reason: "cannot discount a paid order"}
		}
		if models.IsTerminalStatus(order.Status) {
			return models.Order{}, InvalidRequestError{Reason: "order is in a terminal status"}
		}

		discount := rule.flat
		if !rule.percent.IsZero() {
			discount = order.Subtotal.MulRate(rule.percent.Div(decimal.NewFromInt(100))).Round()
		}
		if discount.GreaterThan(order.Subtotal) {
			discount = order.Subtotal
		}

		order.DiscountAmount = discount
		order.TotalAmount = s.rules.Total(order.Subtotal, order.TaxAmount, order.ShippingAmount, discount)
		order.UpdatedAt = s.now()

		err = s.repo.Save(ctx, &order)
		if err == nil {
			log.Printf("[ORDER] [INFO] discount %s applied to order %s: %s off", code, order.OrderNumber, discount)
			return order, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return models.Order{}, err
		}
	}
	return models.Order{}, ErrVersionConflict
}
