package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/accountd/internal/models"
)

const ProfilesCollection = "profiles"

type MongoProfileRepository struct {
	col *mongo.Collection
}

func NewMongoProfileRepository(db *mongo.Database) *MongoProfileRepository {
	return &MongoProfileRepository{col: db.Collection(ProfilesCollection)}
}

func (r *MongoProfileRepository) Create(ctx context.Context, profile models.Profile) (models.Profile, error) {
	now := time.Now().UTC()
	if profile.ID.IsZero() {
		profile.ID = primitive.NewObjectID()
	}
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, profile); err != nil {
		return models.Profile{}, translate(err)
	}
	return profile, nil
}

func (r *MongoProfileRepository) FindByUserID(ctx context.Context, userID primitive.ObjectID) (models.Profile, error) {
	var profile models.Profile
	if err := r.col.FindOne(ctx, bson.M{"userId": userID}).Decode(&profile); err != nil {
		return models.Profile{}, translate(err)
	}
	return profile, nil
}

func (r *MongoProfileRepository) Update(ctx context.Context, userID primitive.ObjectID, patch models.ProfilePatch) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.FirstName != nil {
		set["firstName"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["lastName"] = *patch.LastName
	}
	if patch.ProfileImage != nil {
		set["profileImage"] = *patch.ProfileImage
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"userId": userID}, bson.M{"$set": set})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// accountRow is the $lookup output shape: a profile with its user embedded.
type accountRow struct {
	models.Profile `bson:",inline"`
	User           models.User `bson:"user"`
}

func (r *MongoProfileRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: UsersCollection},
			{Key: "localField", Value: "userId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "user"},
		}}},
		{{Key: "$unwind", Value: "$user"}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	accounts := []models.Account{}
	for cur.Next(ctx) {
		var row accountRow
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		accounts = append(accounts, models.Account{User: row.User, Profile: row.Profile})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}
