package ids

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntityID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewEntityID()
		assert.Len(t, id, 26)
		assert.Equal(t, strings.ToLower(id), id)

		_, dup := seen[id]
		require.False(t, dup, "entity ids must be unique")
		seen[id] = struct{}{}
	}
}

func TestNewPublicID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := NewPublicID()
		require.NoError(t, err)
		assert.Len(t, id, PublicIDLength)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(PublicIDAlphabet, r), "unexpected rune %q", r)
		}
	}
}

func TestNewCVRID(t *testing.T) {
	id := NewCVRID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewCVRID())
}
