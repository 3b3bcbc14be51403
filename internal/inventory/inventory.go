// Package inventory reserves and releases product stock for orders.
package inventory

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

// StockStore is the product collaborator the coordinator works against.
// DecrementStock must be conditional: it reports matched=false instead of
// going negative when stock is below qty, so check and decrement are a single
// atomic operation per product.
type StockStore interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
	IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error
}

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID primitive.ObjectID
	Name      string
	Requested int
	Available int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID.Hex(), e.Requested, e.Available)
}

// ReleaseFailure records one line whose stock could not be returned.
type ReleaseFailure struct {
	ProductID primitive.ObjectID
	Quantity  int
	Err       error
}

// ReleaseResult is the best-effort outcome of a release. Failures are
// reported for inspection but never escalate: releasing stock must not block
// an already-decided cancellation or refund.
type ReleaseResult struct {
	Failed []ReleaseFailure
}

func (r ReleaseResult) OK() bool {
	return len(r.Failed) == 0
}

type Coordinator struct {
	store StockStore
}

func NewCoordinator(store StockStore) *Coordinator {
	return &Coordinator{store: store}
}

// Reserve decrements stock for every order line. On the first failing line,
// decrements already applied are undone so no partial reservation remains.
func (c *Coordinator) Reserve(ctx context.Context, order *models.Order) error {
	reserved := make([]models.OrderLine, 0, len(order.Items))

	for _, line := range order.Items {
		matched, err := c.store.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			c.undo(ctx, order.OrderNumber, reserved)
			return err
		}
		if !matched {
			c.undo(ctx, order.OrderNumber, reserved)
			available := 0
			name := line.Name
			if product, lookupErr := c.store.GetProduct(ctx, line.ProductID); lookupErr == nil {
				available = product.Stock
				name = product.Name
			}
			return InsufficientStockError{
				ProductID: line.ProductID,
				Name:      name,
				Requested: line.Quantity,
				Available: available,
			}
		}
		reserved = append(reserved, line)
	}
	return nil
}

// Release returns every line's quantity to available stock. Failures are
// logged and collected, never returned as an error.
func (c *Coordinator) Release(ctx context.Context, order *models.Order) ReleaseResult {
	var result ReleaseResult
	for _, line := range order.Items {
		if err := c.store.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			log.Printf("[INVENTORY] [ERROR] release failed for order %s product %s qty %d: %v",
				order.OrderNumber, line.ProductID.Hex(), line.Quantity, err)
			result.Failed = append(result.Failed, ReleaseFailure{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Err:       err,
			})
		}
	}
	return result
}

func (c *Coordinator) undo(ctx context.Context, orderNumber string, reserved []models.OrderLine) {
	for _, line := range reserved {
		if err := c.store.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			log.Printf("[INVENTORY] [ERROR] reservation rollback failed for order %s product %s qty %d: %v",
				orderNumber, line.ProductID.Hex(), line.Quantity, err)
		}
	}
}
