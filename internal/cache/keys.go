package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// storageKey namespaces a caller key and bounds its length. Keys longer than
// maxKeyLength are replaced by a fixed-width digest of the namespaced key so
// the remote store never sees unbounded key sizes.
func storageKey(namespace, key string, maxKeyLength int) string {
	full := namespace + ":" + key
	if maxKeyLength <= 0 || len(full) <= maxKeyLength {
		return full
	}
	return fmt.Sprintf("%s:h:%016x", namespace, xxhash.Sum64String(full))
}
