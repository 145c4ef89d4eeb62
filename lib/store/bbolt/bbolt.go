package bbolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CerberHQ/cerber"
	"github.com/CerberHQ/cerber/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrBucketDoesNotExist = errors.New("bbolt: bucket does not exist")
	ErrNotExists          = errors.New("bbolt: value does not exist in store")
)

// Store implements store.Interface backed by bbolt[1].
//
// bbolt is a hierarchical key/value store where every value belongs to a
// bucket. Each record in the store gets its own bucket with two keys:
//
// 1. data - The raw record, usually JSON
// 2. expiry - The expiry time as a time.RFC3339Nano timestamp string
//
// Nesting like this lets the cleanup pass scan only expiry times without
// decoding whole records, and it lets Swap rewrite a record inside one
// bbolt update transaction, which is what gives tokens their exactly-once
// redemption guarantee on this backend.
//
// bbolt is not suitable for environments where multiple Cerber instances
// need to share one backend store. Use the valkey backend for that.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
}

// Delete a key from the datastore. If the key does not exist, return an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(key)) == nil {
			return fmt.Errorf("%w: %q", ErrNotExists, key)
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// Get a value from the datastore.
//
// Because each value is stored in its own bucket with data and expiry keys,
// two reads happen per Get:
//
// 1. Read the expiry key, parse as time.RFC3339Nano. If the key has expired, run deletion in the background and return a "key not found" error.
// 2. Read the data key, copy into the result byteslice, return it.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		data, _, err := readItem(tx, key)
		if err != nil {
			return err
		}

		if data == nil {
			go s.Delete(context.Background(), key)
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		result = make([]byte, len(data))
		if n := copy(result, data); n != len(data) {
			return fmt.Errorf("[unexpected] %w: %d bytes copied of %d", store.ErrCantDecode, n, len(data))
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// readItem fetches a record's data inside an open transaction. A nil data
// slice with a nil error means the record exists but has expired.
func readItem(tx *bbolt.Tx, key string) (data []byte, expiry time.Time, err error) {
	itemBucket := tx.Bucket([]byte(key))
	if itemBucket == nil {
		return nil, time.Time{}, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	expiryStr := itemBucket.Get([]byte("expiry"))
	if expiryStr == nil {
		return nil, time.Time{}, fmt.Errorf("[unexpected] %w: %q (expiry is nil)", store.ErrNotFound, key)
	}

	expiry, err = time.Parse(time.RFC3339Nano, string(expiryStr))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	if time.Now().After(expiry) {
		return nil, expiry, nil
	}

	dataStr := itemBucket.Get([]byte("data"))
	if dataStr == nil {
		return nil, expiry, fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, key)
	}

	return dataStr, expiry, nil
}

func writeItem(tx *bbolt.Tx, key string, value []byte, expires time.Time) error {
	valueBkt, err := tx.CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
	}

	if err := valueBkt.Put([]byte("expiry"), []byte(expires.Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
	}

	if err := valueBkt.Put([]byte("data"), value); err != nil {
		return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
	}

	return nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	expires := time.Now().Add(expiry)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return writeItem(tx, key, value, expires)
	})
}

// Swap reads, transforms, and rewrites a record inside one update
// transaction. bbolt serializes writers, so no other Swap or Set can
// interleave with fn.
func (s *Store) Swap(ctx context.Context, key string, fn store.SwapFunc) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		var old []byte
		found := true

		data, _, err := readItem(tx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			found = false
		case err != nil:
			return err
		case data == nil: // expired
			found = false
		default:
			old = data
		}

		value, expiry, err := fn(old, found)
		if err != nil {
			return err
		}

		return writeItem(tx, key, value, time.Now().Add(expiry))
	})
}

func (s *Store) cleanup(ctx context.Context) error {
	now := time.Now()

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(key []byte, valueBkt *bbolt.Bucket) error {
			expiryStr := valueBkt.Get([]byte("expiry"))
			if expiryStr == nil {
				slog.Warn("while running cleanup, expiry is not set somehow, file a bug?", "key", string(key))
				return nil
			}

			expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
			if err != nil {
				return fmt.Errorf("[unexpected] %w in bucket %q: %w", store.ErrCantDecode, string(key), err)
			}

			if now.After(expiry) {
				return tx.DeleteBucket(key)
			}

			return nil
		})
	})
}

func (s *Store) cleanupThread(ctx context.Context) {
	t := time.NewTicker(cerber.CleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.cleanup(ctx); err != nil {
				slog.Error("error during bbolt cleanup", "err", err)
			}
		}
	}
}
