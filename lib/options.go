package lib

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/CerberHQ/cerber/data"
	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/policy"
	"github.com/CerberHQ/cerber/lib/store"
)

// Options configures a Server.
type Options struct {
	// Policy is the parsed risk policy. Required.
	Policy *policy.ParsedConfig

	// Store holds all engine state. Required.
	Store store.Interface

	// Catalog serves challenge content. Optional; defaults to the
	// embedded development catalog.
	Catalog catalog.Interface

	// CatalogSeed fixes the default catalog's draw order. Zero means
	// seed from entropy.
	CatalogSeed uint64
}

// LoadPoliciesOrDefault parses the risk policy at fname, or the embedded
// default policy when fname is empty.
func LoadPoliciesOrDefault(ctx context.Context, fname string) (*policy.ParsedConfig, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
	} else {
		fname = "(data)/riskPolicy.yaml"
		fin, err = data.RiskPolicy.Open("riskPolicy.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("can't open policy file %s: %w", fname, err)
	}
	defer fin.Close()

	return policy.ParseConfig(fin, fname)
}
