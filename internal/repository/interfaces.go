package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/accountd/internal/models"
)

// Hasher turns a plaintext password into its stored form. Repositories hash
// on every password write so callers never persist plaintext.
type Hasher interface {
	Hash(password string) (string, error)
}

// UserRepository is the credential store.
type UserRepository interface {
	Create(ctx context.Context, email, password string) (models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdateEmail(ctx context.Context, id primitive.ObjectID, email string) error
	SetPassword(ctx context.Context, id primitive.ObjectID, password string) error
	SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) error
	// ConsumeResetToken sets password on the user holding an unexpired token
	// and clears the token in the same write.
	ConsumeResetToken(ctx context.Context, token, password string, now time.Time) (models.User, error)
}

// ProfileRepository is the profile store.
type ProfileRepository interface {
	Create(ctx context.Context, profile models.Profile) (models.Profile, error)
	FindByUserID(ctx context.Context, userID primitive.ObjectID) (models.Profile, error)
	Update(ctx context.Context, userID primitive.ObjectID, patch models.ProfilePatch) error
	// ListAccounts returns every profile joined with its user.
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

type PostRepository interface {
	ListByAuthor(ctx context.Context, author primitive.ObjectID) ([]models.Post, error)
}

// TxManager runs fn inside a transaction. fn must use the context it is given.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
