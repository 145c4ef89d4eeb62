package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CerberHQ/cerber/lib/store"
	valkey "github.com/redis/go-redis/v9"
)

// swapAttempts is how many times Swap retries an optimistic transaction
// before giving up with store.ErrSwapConflict.
const swapAttempts = 8

type Store struct {
	rdb *valkey.Client
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("can't delete from valkey: %w", err)
	}

	switch n {
	case 0:
		return fmt.Errorf("%w: %d key(s) deleted", store.ErrNotFound, n)
	default:
		return nil
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if valkey.HasErrorPrefix(err, "redis: nil") {
			return nil, fmt.Errorf("%w: %w", store.ErrNotFound, err)
		}

		return nil, fmt.Errorf("can't fetch from valkey: %w", err)
	}

	return []byte(result), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	if _, err := s.rdb.Set(ctx, key, string(value), expiry).Result(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", key, err)
	}

	return nil
}

// Swap implements the read-modify-write primitive with an optimistic
// WATCH/MULTI/EXEC transaction. If another writer touches the key between
// the read and the EXEC, the transaction fails and the whole thing is
// retried with a fresh read, so fn only ever commits against the value it
// actually observed.
func (s *Store) Swap(ctx context.Context, key string, fn store.SwapFunc) error {
	txf := func(tx *valkey.Tx) error {
		var old []byte
		found := true

		current, err := tx.Get(ctx, key).Result()
		switch {
		case valkey.HasErrorPrefix(err, "redis: nil"):
			found = false
		case err != nil:
			return fmt.Errorf("can't fetch from valkey: %w", err)
		default:
			old = []byte(current)
		}

		value, expiry, err := fn(old, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe valkey.Pipeliner) error {
			pipe.Set(ctx, key, string(value), expiry)
			return nil
		})
		return err
	}

	for range swapAttempts {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, valkey.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: %q", store.ErrSwapConflict, key)
}
