package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRF_CombinesMultipleLists(t *testing.T) {
	dense := RankedList{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	sparse := RankedList{{ID: "c"}, {ID: "a"}, {ID: "d"}}

	results := FuseRRF(dense, sparse)
	require.Len(t, results, 4)

	byID := make(map[string]float64)
	for _, r := range results {
		byID[r.Chunk.ID] = r.Score
	}

	assert.Greater(t, byID["a"], byID["b"])
	assert.Greater(t, byID["c"], byID["d"])
}

func TestFuseRRF_SingleListPreservesOrder(t *testing.T) {
	list := RankedList{{ID: "x"}, {ID: "y"}, {ID: "z"}}
	results := FuseRRF(list)
	require.Len(t, results, 3)
	assert.Equal(t, "x", results[0].Chunk.ID)
	assert.Equal(t, "y", results[1].Chunk.ID)
	assert.Equal(t, "z", results[2].Chunk.ID)
}

func TestFuseRRF_EmptyListsProduceNoResults(t *testing.T) {
	results := FuseRRF()
	assert.Empty(t, results)
}

func TestFuseRRF_TiesBreakByID(t *testing.T) {
	list := RankedList{{ID: "b"}}
	other := RankedList{{ID: "a"}}
	results := FuseRRF(list, other)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
}
