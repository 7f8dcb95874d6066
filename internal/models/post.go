package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is authored content owned by a User. This service only reads posts.
type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Author    primitive.ObjectID `bson:"author" json:"author"`
	Title     string             `bson:"title" json:"title"`
	Body      string             `bson:"body" json:"body"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
