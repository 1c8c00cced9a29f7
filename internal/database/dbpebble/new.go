package dbpebble

import (
	"github.com/cockroachdb/pebble"
)

// OpenDB opens the final tier database under path.
func OpenDB(path string) (*pebble.DB, error) {
	opts := (&pebble.Options{}).EnsureDefaults()
	opts.Cache = pebble.NewCache(64 << 20)
	defer opts.Cache.Unref()

	// sector values are rewritten whole, keep background flushes smooth
	opts.BytesPerSync = 1 << 20
	opts.MaxConcurrentCompactions = func() int { return 2 }

	return pebble.Open(path, opts)
}
