package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CerberHQ/cerber/lib/store"
	"go.etcd.io/bbolt"
)

var (
	ErrMissingPath     = errors.New("bbolt: path is missing from config")
	ErrCantWriteToPath = errors.New("bbolt: can't write to path")
)

func init() {
	store.Register("bbolt", Factory{})
}

// Config is the bbolt storage backend configuration.
type Config struct {
	// Path is the filesystem path of the database. The containing folder
	// must be writable by Cerber.
	Path string `json:"path"`
}

// Valid checks the configuration, including probing whether the
// containing folder is writable.
func (c Config) Valid() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, ErrMissingPath)
	} else {
		probe := filepath.Join(filepath.Dir(c.Path), ".cerber-write-probe")
		if err := os.WriteFile(probe, []byte(""), 0600); err != nil {
			errs = append(errs, ErrCantWriteToPath)
		}
		os.Remove(probe)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

func decodeConfig(data json.RawMessage) (Config, error) {
	var config Config

	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	if err := config.Valid(); err != nil {
		return config, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return config, nil
}

// Factory builds the bbolt storage backend from policy document
// parameters.
type Factory struct{}

func (Factory) Valid(data json.RawMessage) error {
	_, err := decodeConfig(data)
	return err
}

// Build opens the database and starts the background sweep for expired
// records.
func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	config, err := decodeConfig(data)
	if err != nil {
		return nil, err
	}

	bdb, err := bbolt.Open(config.Path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt database %s: %w", config.Path, err)
	}

	result := &Store{
		bdb: bdb,
	}

	go result.cleanupThread(ctx)

	return result, nil
}
