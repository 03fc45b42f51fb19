package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageKeyNamespaces(t *testing.T) {
	assert.Equal(t, "qf:user:1", storageKey("qf", "user:1", 250))
}

func TestStorageKeyBoundsLongKeys(t *testing.T) {
	long := strings.Repeat("x", 500)

	bounded := storageKey("qf", long, 64)
	assert.LessOrEqual(t, len(bounded), 64)
	assert.True(t, strings.HasPrefix(bounded, "qf:h:"))

	// Deterministic: the same key always hashes the same way.
	assert.Equal(t, bounded, storageKey("qf", long, 64))

	// Distinct keys must not collide on the prefix form.
	other := storageKey("qf", strings.Repeat("y", 500), 64)
	assert.NotEqual(t, bounded, other)
}

func TestStorageKeyZeroMaxDisablesBounding(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Equal(t, "qf:"+long, storageKey("qf", long, 0))
}
