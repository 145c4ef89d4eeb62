package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the store implementation cannot find the value
	// for a given key.
	ErrNotFound = errors.New("store: key not found")

	// ErrCantDecode is returned when a store adaptor cannot decode the store format
	// to a value used by the code.
	ErrCantDecode = errors.New("store: can't decode value")

	// ErrCantEncode is returned when a store adaptor cannot encode the value into
	// the format that the store uses.
	ErrCantEncode = errors.New("store: can't encode value")

	// ErrBadConfig is returned when a store adaptor's configuration is invalid.
	ErrBadConfig = errors.New("store: configuration is invalid")

	// ErrSwapConflict is returned when a Swap lost its race too many times in a
	// row against concurrent writers. Callers may retry.
	ErrSwapConflict = errors.New("store: swap conflict")
)

// SwapFunc transforms the current value under a key during Swap. old is the
// current value and found reports whether the key exists and has not expired.
// It returns the replacement value and its expiry. Returning a non-nil error
// aborts the swap without writing; the error is passed through to the caller
// unwrapped so that domain sentinels survive.
type SwapFunc func(old []byte, found bool) (value []byte, expiry time.Duration, err error)

// Interface defines the calls that Cerber uses for storage in a local or
// remote datastore. This can be implemented with an in-memory, on-disk, or
// in-database storage backend.
//
// Swap is the load-bearing call: token redemption and rate-limit window
// increments rely on it observing and replacing a value atomically so two
// concurrent redemptions of the same token can never both succeed.
type Interface interface {
	// Delete removes a value from the store by key.
	Delete(ctx context.Context, key string) error

	// Get returns the value of a key assuming that value exists and has not expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set puts a value into the store that expires according to its expiry.
	Set(ctx context.Context, key string, value []byte, expiry time.Duration) error

	// Swap atomically replaces the value under key with fn's result. No other
	// writer can interleave between fn observing the old value and the new
	// value landing.
	Swap(ctx context.Context, key string, fn SwapFunc) error
}

func z[T any]() T { return *new(T) }

// JSON adapts an Interface into a typed store for one record kind, with an
// optional key prefix separating record kinds in a shared backend.
type JSON[T any] struct {
	Underlying Interface
	Prefix     string
}

func (j *JSON[T]) Delete(ctx context.Context, key string) error {
	if j.Prefix != "" {
		key = j.Prefix + key
	}

	return j.Underlying.Delete(ctx, key)
}

func (j *JSON[T]) Get(ctx context.Context, key string) (T, error) {
	if j.Prefix != "" {
		key = j.Prefix + key
	}

	data, err := j.Underlying.Get(ctx, key)
	if err != nil {
		return z[T](), err
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return z[T](), fmt.Errorf("%w: %w", ErrCantDecode, err)
	}

	return result, nil
}

func (j *JSON[T]) Set(ctx context.Context, key string, value T, expiry time.Duration) error {
	if j.Prefix != "" {
		key = j.Prefix + key
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCantEncode, err)
	}

	return j.Underlying.Set(ctx, key, data, expiry)
}

// Swap runs a typed read-modify-write against the underlying store.
func (j *JSON[T]) Swap(ctx context.Context, key string, fn func(old T, found bool) (T, time.Duration, error)) error {
	if j.Prefix != "" {
		key = j.Prefix + key
	}

	return j.Underlying.Swap(ctx, key, func(old []byte, found bool) ([]byte, time.Duration, error) {
		var oldVal T
		if found {
			if err := json.Unmarshal(old, &oldVal); err != nil {
				return nil, 0, fmt.Errorf("%w: %w", ErrCantDecode, err)
			}
		}

		newVal, expiry, err := fn(oldVal, found)
		if err != nil {
			return nil, 0, err
		}

		data, err := json.Marshal(newVal)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrCantEncode, err)
		}

		return data, expiry, nil
	})
}
