package redisrepo

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable classifies every failed store round-trip as retryable.
// Callers test with errors.Is; the underlying redis error stays in the chain.
var ErrStoreUnavailable = errors.New("presence store unavailable")

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrStoreUnavailable, e.op, e.err)
}

func (e *storeError) Unwrap() error { return e.err }

func (e *storeError) Is(target error) bool { return target == ErrStoreUnavailable }

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}
