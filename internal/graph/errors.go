package graph

import (
	"errors"

	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/services"
)

const codeRateLimited = "RATE_LIMITED"

// Error is returned from resolvers. graphql-go copies Extensions into the
// formatted error, so clients see extensions.code.
type Error struct {
	Message string
	Code    string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Code}
}

var (
	errUnauthenticated = &Error{Message: "You must be logged in", Code: services.KindAuthentication.Code()}
	errThrottled       = &Error{Message: "Too many attempts. Please try again later.", Code: codeRateLimited}
)

// clientError converts a service failure into a client-safe resolver error.
// Causes of internal failures are logged, never returned.
func clientError(log *zap.Logger, op string, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		log.Error("resolver failed", zap.String("operation", op), zap.Error(err))
		return &Error{Message: "internal server error", Code: services.KindTransient.Code(), cause: err}
	}
	if svcErr.Kind == services.KindTransient {
		log.Error("resolver failed", zap.String("operation", op), zap.Error(svcErr.Err))
	}
	return &Error{Message: svcErr.Message, Code: svcErr.Kind.Code(), cause: err}
}
