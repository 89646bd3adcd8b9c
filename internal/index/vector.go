package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotFound          = errors.New("chunk not found in index")
)

// Hit is one nearest-neighbour result.
type Hit struct {
	ChunkID string
	Score   float32
}

type entry struct {
	chunkID string
	vector  []float32
	order   int // insertion order, used to break score ties
}

// Index is an in-memory vector store searched by brute-force cosine
// similarity. All vectors share one fixed dimension. At the expected scale
// (hundreds to low thousands of chunks) a linear scan is sufficient.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
	byID    map[string]int // chunkID -> position in entries
	nextOrd int
}

func New(dim int) *Index {
	return &Index{dim: dim, byID: make(map[string]int)}
}

func (ix *Index) Dimension() int { return ix.dim }

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Insert adds one vector. A mismatched dimension leaves the index unchanged.
func (ix *Index) Insert(chunkID string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.insertLocked(chunkID, vector)
}

// InsertBatch adds all vectors or none of them: a failure on any element
// rolls back the ones already added, and no concurrent Query observes a
// partially applied batch.
func (ix *Index) InsertBatch(chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("chunk ids and vectors length mismatch: %d != %d", len(chunkIDs), len(vectors))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	added := 0
	for i := range chunkIDs {
		if err := ix.insertLocked(chunkIDs[i], vectors[i]); err != nil {
			for j := 0; j < added; j++ {
				ix.removeLocked(chunkIDs[j])
			}
			return err
		}
		added++
	}
	return nil
}

func (ix *Index) insertLocked(chunkID string, vector []float32) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, index dimension is %d", ErrDimensionMismatch, len(vector), ix.dim)
	}
	if _, exists := ix.byID[chunkID]; exists {
		return fmt.Errorf("chunk %s already indexed", chunkID)
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	ix.byID[chunkID] = len(ix.entries)
	ix.entries = append(ix.entries, entry{chunkID: chunkID, vector: vec, order: ix.nextOrd})
	ix.nextOrd++
	return nil
}

// Query returns the min(k, size) most similar chunks, best first. Ties are
// broken by insertion order, earlier first, so results are deterministic.
// An empty index yields an empty result, not an error.
func (ix *Index) Query(vector []float32, k int) ([]Hit, error) {
	if len(vector) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", ErrDimensionMismatch, len(vector), ix.dim)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.entries) == 0 {
		return []Hit{}, nil
	}

	type scored struct {
		entry entry
		score float32
	}
	results := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, scored{entry: e, score: cosineSimilarity(vector, e.vector)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.order < results[j].entry.order
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, 0, k)
	for _, r := range results[:k] {
		hits = append(hits, Hit{ChunkID: r.entry.chunkID, Score: r.score})
	}
	return hits, nil
}

func (ix *Index) Remove(chunkID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(chunkID)
}

func (ix *Index) removeLocked(chunkID string) error {
	pos, ok := ix.byID[chunkID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, chunkID)
	}
	ix.entries = append(ix.entries[:pos], ix.entries[pos+1:]...)
	delete(ix.byID, chunkID)
	for i := pos; i < len(ix.entries); i++ {
		ix.byID[ix.entries[i].chunkID] = i
	}
	return nil
}

func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	ix.byID = make(map[string]int)
	ix.nextOrd = 0
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, magA, magB float32
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}
