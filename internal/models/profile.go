package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile extends a User one-to-one. It is created in the same transaction
// as its User and never exists without it.
type Profile struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	FirstName    string `bson:"firstName" json:"firstName"`
	MiddleName   string `bson:"middleName,omitempty" json:"middleName,omitempty"`
	LastName     string `bson:"lastName,omitempty" json:"lastName,omitempty"`
	ProfileImage string `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
}

// ProfilePatch carries optional profile changes; nil fields are left untouched.
type ProfilePatch struct {
	FirstName    *string
	LastName     *string
	ProfileImage *string
}

func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.ProfileImage == nil
}
