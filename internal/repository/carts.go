package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

type CartStore struct {
	db *mongo.Database
}

func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{db: db}
}

func (s *CartStore) collection() *mongo.Collection {
	return s.db.Collection("carts")
}

// GetCart returns the user's cart, empty if none exists yet.
func (s *CartStore) GetCart(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	var cart models.Cart
	err := s.collection().FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	if err == mongo.ErrNoDocuments {
		return models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return models.Cart{}, err
	}
	return cart, nil
}

func (s *CartStore) GetLines(ctx context.Context, userID primitive.ObjectID) ([]models.CartItem, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func (s *CartStore) IsEmpty(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	items, err := s.GetLines(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(items) == 0, nil
}

// SetItems replaces the cart contents, creating the cart document on first
// use.
func (s *CartStore) SetItems(ctx context.Context, userID primitive.ObjectID, items []models.CartItem) error {
	_, err := s.collection().UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": bson.M{"items": items, "updatedAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *CartStore) Clear(ctx context.Context, userID primitive.ObjectID) error {
	return s.SetItems(ctx, userID, []models.CartItem{})
}
