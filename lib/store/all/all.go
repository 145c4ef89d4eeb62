// Package all imports every storage backend for their side effects so the
// daemon can pick one by name at startup.
package all

import (
	_ "github.com/CerberHQ/cerber/lib/store/bbolt"
	_ "github.com/CerberHQ/cerber/lib/store/memory"
	_ "github.com/CerberHQ/cerber/lib/store/valkey"
)
