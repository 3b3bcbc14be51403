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

type ProductStore struct {
	db *mongo.Database
}

func NewProductStore(db *mongo.Database) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) collection() *mongo.Collection {
	return s.db.Collection("products")
}

func (s *ProductStore) GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := s.collection().FindOne(ctx, bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return models.Product{}, orders.NotFoundError{Resource: "product", Key: id.Hex()}
	}
	if err != nil {
		return models.Product{}, err
	}
	product.InStock = product.Stock > 0
	product.IsOnSale = product.OnSale()
	return product, nil
}

func (s *ProductStore) HasStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	count, err := s.collection().CountDocuments(ctx, bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
		"stock":     bson.M{"$gte": qty},
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DecrementStock is a single conditional update: the filter requires enough
// stock, so check and decrement cannot race. matched=false means the product
// is missing or short on stock.
func (s *ProductStore) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	filter := bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
		"stock":     bson.M{"$gte": qty},
	}
	update := bson.M{"$inc": bson.M{"stock": -qty}}

	res, err := s.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *ProductStore) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"stock": qty}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return orders.NotFoundError{Resource: "product", Key: id.Hex()}
	}
	return nil
}

// List returns active catalog products, newest first, optionally paginated.
func (s *ProductStore) List(ctx context.Context, page, limit int64) ([]models.Product, error) {
	filter := bson.M{
		"isActive":  bson.M{"$ne": false},
		"isDeleted": bson.M{"$ne": true},
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if page > 0 && limit > 0 {
		findOptions.SetSkip((page - 1) * limit).SetLimit(limit)
	}

	cursor, err := s.collection().Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	for i := range products {
		products[i].InStock = products[i].Stock > 0
		products[i].IsOnSale = products[i].OnSale()
	}
	return products, nil
}

func (s *ProductStore) Insert(ctx context.Context, product *models.Product) error {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	res, err := s.collection().InsertOne(ctx, product)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		product.ID = id
	}
	return nil
}

func (s *ProductStore) Update(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return orders.NotFoundError{Resource: "product", Key: id.Hex()}
	}
	return nil
}

// Delete soft-deletes the product; existing order lines keep their snapshot.
func (s *ProductStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"isDeleted": true, "isActive": false, "deletedAt": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return orders.NotFoundError{Resource: "product", Key: id.Hex()}
	}
	return nil
}
