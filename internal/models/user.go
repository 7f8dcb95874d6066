package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the credential record. Email is unique (enforced by index).
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	Email    string `bson:"email" json:"email"`
	Password string `bson:"password" json:"-"` // Don't return password in JSON

	// Reset token fields are unset once consumed.
	ResetPasswordToken   *string    `bson:"resetPasswordToken,omitempty" json:"-"`
	ResetPasswordExpires *time.Time `bson:"resetPasswordExpires,omitempty" json:"-"`
}

// Account is a user joined with its profile, the shape returned to API clients.
type Account struct {
	User    User
	Profile Profile
}
