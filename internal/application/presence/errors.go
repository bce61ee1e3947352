package presence

import (
	"errors"

	redisrepo "parley/backend/internal/infrastructure/redis"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("authentication required")
)

// IsTransient reports whether the failure is a store round-trip the client
// may simply retry. Everything else is a rejection.
func IsTransient(err error) bool {
	return errors.Is(err, redisrepo.ErrStoreUnavailable)
}
