// Package repository contains the MongoDB implementations of the order
// service's collaborator interfaces.
package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
	"storefront/internal/orders"
)

type UserStore struct {
	db *mongo.Database
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) collection() *mongo.Collection {
	return s.db.Collection("users")
}

func (s *UserStore) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var user models.User
	err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return models.User{}, orders.NotFoundError{Resource: "user", Key: id.Hex()}
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.collection().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return models.User{}, orders.NotFoundError{Resource: "user", Key: email}
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *UserStore) Insert(ctx context.Context, user *models.User) error {
	res, err := s.collection().InsertOne(ctx, user)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}
