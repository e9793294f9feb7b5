package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityTranslatorPassesIdsThrough(t *testing.T) {
	tr := Identity()
	assert.False(t, tr.IsSnapshotMode())
	assert.Equal(t, 17, tr.ToWire(17))
	assert.Equal(t, 4, tr.FromWire(4))
}

func TestOffsetTranslatorMapsKnownIdsBothWays(t *testing.T) {
	nom := &NameOffsetMapping{
		FunctionOffsets: map[string]int{"main": 1000},
		ClassOffsets:    map[string]int{"Object": 2000},
	}
	mapping := NewIdOffsetMapping(nom, map[string]int{"main": 17}, map[string]int{"Object": 3})
	tr := Offset(mapping)

	assert.True(t, tr.IsSnapshotMode())
	assert.Equal(t, 1000, tr.ToWire(17))
	assert.Equal(t, 17, tr.FromWire(1000))
	assert.Equal(t, 2000, tr.ToWire(3))
	assert.Equal(t, 3, tr.FromWire(2000))
}

func TestOffsetTranslatorFallsBackToIdentityForUnknownIds(t *testing.T) {
	mapping := NewIdOffsetMapping(&NameOffsetMapping{}, nil, nil)
	tr := Offset(mapping)
	assert.Equal(t, 99, tr.ToWire(99))
	assert.Equal(t, 99, tr.FromWire(99))
}
