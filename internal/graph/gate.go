package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/middleware"
	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/services"
)

// Limiter decides whether another attempt from key is allowed.
type Limiter interface {
	Allow(key string) bool
}

// CallerLookup resolves a verified user id to its account.
type CallerLookup interface {
	Me(ctx context.Context, userID string) (models.Account, error)
}

// Gate wraps resolvers with access checks.
type Gate struct {
	users   CallerLookup
	limiter Limiter
	log     *zap.Logger
}

func NewGate(users CallerLookup, limiter Limiter, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{users: users, limiter: limiter, log: logger}
}

type callerKey struct{}

// caller memoises the caller lookup for one request.
type caller struct {
	once    sync.Once
	account models.Account
	err     error
}

func withCallerCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, callerKey{}, &caller{})
}

type accountKey struct{}

// CallerFromContext returns the account admitted by Authenticated.
func CallerFromContext(ctx context.Context) (models.Account, bool) {
	account, ok := ctx.Value(accountKey{}).(models.Account)
	return account, ok
}

// Authenticated runs resolve only when the request carries a verified
// identity that still resolves to an existing user. Denied fields resolve to
// null with an UNAUTHENTICATED error and resolve is never called.
func (g *Gate) Authenticated(resolve graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		account, err := g.lookup(p.Context)
		switch {
		case errors.Is(err, errUnauthenticated), errors.Is(err, services.ErrNotFound):
			return nil, errUnauthenticated
		case err != nil:
			return nil, clientError(g.log, "authenticate", err)
		}
		p.Context = context.WithValue(p.Context, accountKey{}, account)
		return resolve(p)
	}
}

func (g *Gate) lookup(ctx context.Context) (models.Account, error) {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return models.Account{}, errUnauthenticated
	}
	c, ok := ctx.Value(callerKey{}).(*caller)
	if !ok {
		return g.users.Me(ctx, userID)
	}
	c.once.Do(func() {
		c.account, c.err = g.users.Me(ctx, userID)
	})
	return c.account, c.err
}

// Throttled limits attempts at op per client IP. A nil limiter disables it.
func (g *Gate) Throttled(op string, resolve graphql.FieldResolveFn) graphql.FieldResolveFn {
	if g.limiter == nil {
		return resolve
	}
	return func(p graphql.ResolveParams) (interface{}, error) {
		if !g.limiter.Allow(op + ":" + middleware.ClientIPFromContext(p.Context)) {
			return nil, errThrottled
		}
		return resolve(p)
	}
}
