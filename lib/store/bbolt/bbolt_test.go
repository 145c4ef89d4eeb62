package bbolt

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/CerberHQ/cerber/lib/store/storetest"
)

func TestBbolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cerber.bdb")

	storetest.Common(t, Factory{}, json.RawMessage(fmt.Sprintf(`{"path": %q}`, path)))
}
