package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/orders"
)

type OrderRepository struct {
	db *mongo.Database
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) collection() *mongo.Collection {
	return r.db.Collection("orders")
}

func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	res, err := r.collection().InsertOne(ctx, order)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id
	}
	return nil
}

func (r *OrderRepository) Load(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var order models.Order
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return models.Order{}, orders.NotFoundError{Resource: "order", Key: id.Hex()}
	}
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (r *OrderRepository) LoadByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	var order models.Order
	err := r.collection().FindOne(ctx, bson.M{"orderNumber": orderNumber}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return models.Order{}, orders.NotFoundError{Resource: "order", Key: orderNumber}
	}
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// Save writes the full document back, guarded by the version loaded with it.
// A concurrent writer bumps the version first and this save matches nothing,
// which surfaces as ErrVersionConflict so the caller can reload and retry.
func (r *OrderRepository) Save(ctx context.Context, order *models.Order) error {
	loadedVersion := order.Version
	order.Version++

	res, err := r.collection().ReplaceOne(ctx,
		bson.M{"_id": order.ID, "version": loadedVersion},
		order,
	)
	if err != nil {
		order.Version = loadedVersion
		return err
	}
	if res.MatchedCount == 0 {
		order.Version = loadedVersion
		return orders.ErrVersionConflict
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter orders.ListFilter, page, limit int64) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.UserID != nil {
		query["userId"] = *filter.UserID
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.From != nil || filter.To != nil {
		created := bson.M{}
		if filter.From != nil {
			created["$gte"] = *filter.From
		}
		if filter.To != nil {
			created["$lt"] = *filter.To
		}
		query["createdAt"] = created
	}

	total, err := r.collection().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if page > 0 && limit > 0 {
		findOptions.SetSkip((page - 1) * limit).SetLimit(limit)
	}

	cursor, err := r.collection().Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var result []models.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context, status models.OrderStatus) (int64, error) {
	return r.collection().CountDocuments(ctx, bson.M{"status": status})
}

// RevenueBetween sums totalAmount over paid orders created in [from, to).
// The amounts are stored as Decimal128 so the sum is exact server-side.
func (r *OrderRepository) RevenueBetween(ctx context.Context, from, to time.Time) (models.Money, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"paymentStatus": models.PaymentStatusPaid,
			"createdAt":     bson.M{"$gte": from, "$lt": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"revenue": bson.M{"$sum": "$totalAmount"},
		}}},
	}

	cursor, err := r.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return models.Money{}, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Revenue models.Money `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return models.Money{}, err
	}
	if len(rows) == 0 {
		return models.ZeroMoney(), nil
	}
	return rows[0].Revenue, nil
}
