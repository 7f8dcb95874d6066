package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/accountd/internal/models"
)

const UsersCollection = "users"

type MongoUserRepository struct {
	col    *mongo.Collection
	hasher Hasher
}

func NewMongoUserRepository(db *mongo.Database, hasher Hasher) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(UsersCollection), hasher: hasher}
}

func (r *MongoUserRepository) Create(ctx context.Context, email, password string) (models.User, error) {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := models.User{
		ID:        primitive.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
		Email:     email,
		Password:  hash,
	}
	if _, err := r.col.InsertOne(ctx, user); err != nil {
		return models.User{}, translate(err)
	}
	return user, nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, filter).Decode(&user); err != nil {
		return models.User{}, translate(err)
	}
	return user, nil
}

func (r *MongoUserRepository) UpdateEmail(ctx context.Context, id primitive.ObjectID, email string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"email": email, "updatedAt": time.Now().UTC()},
	})
}

func (r *MongoUserRepository) SetPassword(ctx context.Context, id primitive.ObjectID, password string) error {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"password": hash, "updatedAt": time.Now().UTC()},
	})
}

func (r *MongoUserRepository) SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"resetPasswordToken":   token,
			"resetPasswordExpires": expires.UTC(),
			"updatedAt":            time.Now().UTC(),
		},
	})
}

func (r *MongoUserRepository) ConsumeResetToken(ctx context.Context, token, password string, now time.Time) (models.User, error) {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	filter := bson.M{
		"resetPasswordToken":   token,
		"resetPasswordExpires": bson.M{"$gt": now.UTC()},
	}
	update := bson.M{
		"$set":   bson.M{"password": hash, "updatedAt": now.UTC()},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpires": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		return models.User{}, translate(err)
	}
	return user, nil
}

func (r *MongoUserRepository) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
