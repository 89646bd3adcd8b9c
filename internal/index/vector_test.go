package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryEmptyIndex(t *testing.T) {
	ix := New(3)

	hits, err := ix.Query([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestInsertAndSelfQuery(t *testing.T) {
	ix := New(3)
	require.NoError(t, ix.Insert("c1", []float32{0.2, 0.5, 0.9}))

	hits, err := ix.Query([]float32{0.2, 0.5, 0.9}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-6)
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := New(3)

	err := ix.Insert("c1", []float32{1, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, ix.Len())
}

func TestQueryDimensionMismatch(t *testing.T) {
	ix := New(3)
	require.NoError(t, ix.Insert("c1", []float32{1, 0, 0}))

	_, err := ix.Query([]float32{1, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQueryRankingAndTruncation(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert("east", []float32{1, 0}))
	require.NoError(t, ix.Insert("north", []float32{0, 1}))
	require.NoError(t, ix.Insert("northeast", []float32{1, 1}))

	hits, err := ix.Query([]float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].ChunkID)
	assert.Equal(t, "northeast", hits[1].ChunkID)

	// k larger than the index returns everything.
	hits, err = ix.Query([]float32{1, 0.1}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestQueryTiesBreakByInsertionOrder(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert("second-alphabetically", []float32{1, 0}))
	require.NoError(t, ix.Insert("first-alphabetically", []float32{1, 0}))

	hits, err := ix.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "second-alphabetically", hits[0].ChunkID)
	assert.Equal(t, "first-alphabetically", hits[1].ChunkID)
}

func TestInsertBatchAtomicRollback(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert("existing", []float32{0, 1}))

	err := ix.InsertBatch(
		[]string{"a", "b", "c"},
		[][]float32{{1, 0}, {1, 1}, {1, 0, 0}}, // last vector has the wrong dimension
	)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, ix.Len())

	hits, err := ix.Query([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "existing", hits[0].ChunkID)
}

func TestRemove(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert("a", []float32{1, 0}))
	require.NoError(t, ix.Insert("b", []float32{0, 1}))

	require.NoError(t, ix.Remove("a"))
	assert.Equal(t, 1, ix.Len())

	err := ix.Remove("a")
	require.ErrorIs(t, err, ErrNotFound)

	hits, err := ix.Query([]float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)
}

func TestClear(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert("a", []float32{1, 0}))
	ix.Clear()

	assert.Equal(t, 0, ix.Len())
	hits, err := ix.Query([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
