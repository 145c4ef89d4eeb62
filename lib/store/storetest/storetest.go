// Package storetest contains the conformance suite every storage backend
// must pass, including the atomicity guarantees that token redemption and
// rate-limit accounting rely on.
package storetest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/CerberHQ/cerber/lib/store"
)

func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Interface) error
		err  error
	}{
		{
			name: "basic get set delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to exist in store but it does not: %v", t.Name(), err)
				} else if err != nil {
					t.Error(err)
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Logf("want: %q", t.Name())
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("wanted test to not exist in store but it exists anyways")
				}

				if err := s.Delete(t.Context(), t.Name()); err == nil {
					t.Errorf("key %q does not exist and Delete did not return non-nil", t.Name())
				}

				return nil
			},
		},
		{
			name: "expires",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 150*time.Millisecond); err != nil {
					return err
				}

				time.Sleep(155 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				return nil
			},
		},
		{
			name: "swap inserts when absent",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Swap(t.Context(), t.Name(), func(old []byte, found bool) ([]byte, time.Duration, error) {
					if found {
						t.Errorf("key %q should not exist yet, got %q", t.Name(), string(old))
					}
					return []byte("fresh"), 5 * time.Minute, nil
				}); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}
				if string(val) != "fresh" {
					t.Errorf("want %q, got %q", "fresh", string(val))
				}

				return nil
			},
		},
		{
			name: "swap observes current value",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("before"), 5*time.Minute); err != nil {
					return err
				}

				if err := s.Swap(t.Context(), t.Name(), func(old []byte, found bool) ([]byte, time.Duration, error) {
					if !found {
						t.Error("key should exist")
					}
					if string(old) != "before" {
						t.Errorf("want %q, got %q", "before", string(old))
					}
					return []byte("after"), 5 * time.Minute, nil
				}); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}
				if string(val) != "after" {
					t.Errorf("want %q, got %q", "after", string(val))
				}

				return nil
			},
		},
		{
			name: "swap abort leaves value alone",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("keep"), 5*time.Minute); err != nil {
					return err
				}

				errNope := errors.New("nope")
				if err := s.Swap(t.Context(), t.Name(), func(old []byte, found bool) ([]byte, time.Duration, error) {
					return nil, 0, errNope
				}); !errors.Is(err, errNope) {
					t.Errorf("abort error was not passed through, got: %v", err)
				}

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}
				if string(val) != "keep" {
					t.Errorf("aborted swap changed the value to %q", string(val))
				}

				return nil
			},
		},
		{
			name: "concurrent swaps all land",
			doer: func(t *testing.T, s store.Interface) error {
				const workers = 16

				if err := s.Set(t.Context(), t.Name(), []byte("0"), 5*time.Minute); err != nil {
					return err
				}

				var wg sync.WaitGroup
				for range workers {
					wg.Add(1)
					go func() {
						defer wg.Done()
						err := s.Swap(t.Context(), t.Name(), func(old []byte, found bool) ([]byte, time.Duration, error) {
							n, err := strconv.Atoi(string(old))
							if err != nil {
								return nil, 0, err
							}
							return []byte(strconv.Itoa(n + 1)), 5 * time.Minute, nil
						})
						if err != nil {
							t.Error(err)
						}
					}()
				}
				wg.Wait()

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}
				if string(val) != strconv.Itoa(workers) {
					t.Errorf("lost increments: want %d, got %s", workers, string(val))
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
