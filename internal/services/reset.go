package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/repository"
)

// ResetLedger issues one-time password reset tokens and redeems them.
type ResetLedger struct {
	users    repository.UserRepository
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
}

func NewResetLedger(users repository.UserRepository, ttl time.Duration) *ResetLedger {
	return &ResetLedger{
		users:    users,
		ttl:      ttl,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// Issue stores a fresh token on the user, replacing any previous one.
func (l *ResetLedger) Issue(ctx context.Context, userID primitive.ObjectID) (string, error) {
	token := l.newToken()
	if err := l.users.SetResetToken(ctx, userID, token, l.now().Add(l.ttl)); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem sets password for the holder of token and invalidates the token.
// Unknown, expired and already used tokens all fail the same way.
func (l *ResetLedger) Redeem(ctx context.Context, token, password string) (models.User, error) {
	if token == "" {
		return models.User{}, notFoundError("invalid or expired reset token")
	}
	user, err := l.users.ConsumeResetToken(ctx, token, password, l.now())
	if errors.Is(err, repository.ErrNotFound) {
		return models.User{}, notFoundError("invalid or expired reset token")
	}
	if err != nil {
		return models.User{}, transientError("failed to reset password", err)
	}
	return user, nil
}
