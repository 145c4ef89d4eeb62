package valkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/CerberHQ/cerber/lib/store"
	"github.com/CerberHQ/cerber/lib/store/storetest"
	"github.com/alicebob/miniredis/v2"
)

func TestValkey(t *testing.T) {
	srv := miniredis.RunT(t)

	storetest.Common(t, Factory{}, json.RawMessage(fmt.Sprintf(`{"url": "redis://%s"}`, srv.Addr())))
}

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name   string
		config json.RawMessage
		err    error
	}{
		{
			name:   "no url",
			config: json.RawMessage(`{}`),
			err:    ErrNoURL,
		},
		{
			name:   "bad url",
			config: json.RawMessage(`{"url": "postgres://nope"}`),
			err:    ErrBadURL,
		},
		{
			name:   "not json",
			config: json.RawMessage(`redis pls`),
			err:    store.ErrBadConfig,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := (Factory{}).Valid(tt.config); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
