package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"docqa/internal/domain"
)

// axisEmbedder maps texts onto three axes by keyword so that similarity is
// easy to predict.
type axisEmbedder struct {
	calls int32
	texts int32
	err   error
}

func (e *axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	atomic.AddInt32(&e.texts, int32(len(texts)))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := []float32{0.01, 0.01, 0.01}
		t = strings.ToLower(t)
		if strings.Contains(t, "grace") {
			v[0] = 1
		}
		if strings.Contains(t, "waiting") {
			v[1] = 1
		}
		if strings.Contains(t, "maternity") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (e *axisEmbedder) Dimension() int    { return 3 }
func (e *axisEmbedder) ModelName() string { return "axis" }

func testChunks(texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{ID: string(rune('a' + i)), Text: t}
	}
	return chunks
}

func TestVectorIndex_Search(t *testing.T) {
	emb := &axisEmbedder{}
	chunks := testChunks(
		"Waiting period for pre-existing diseases is 36 months.",
		"The grace period is thirty days.",
		"Maternity expenses are covered after 24 months.",
	)

	idx, err := BuildVectorIndex(context.Background(), emb, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.EqualValues(t, 1, emb.calls, "chunks are embedded in one call")

	results, err := idx.Search(context.Background(), "What is the grace period?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	all, err := idx.Search(context.Background(), "grace", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVectorIndex_BuildErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := BuildVectorIndex(context.Background(), &axisEmbedder{err: boom}, testChunks("x"))
	assert.ErrorIs(t, err, boom)
}

func TestVectorIndex_EmptyAndZeroK(t *testing.T) {
	idx, err := BuildVectorIndex(context.Background(), &axisEmbedder{}, nil)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "grace", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	idx, err = BuildVectorIndex(context.Background(), &axisEmbedder{}, testChunks("grace"))
	require.NoError(t, err)
	results, err = idx.Search(context.Background(), "grace", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestCachedEmbedder_ReusesVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "embeddings.db")
	cache, err := OpenEmbeddingCache(path)
	require.NoError(t, err)

	inner := &axisEmbedder{}
	emb := NewCachedEmbedder(inner, cache)
	assert.Equal(t, "axis", emb.ModelName())
	assert.Equal(t, 3, emb.Dimension())

	first, err := emb.Embed(context.Background(), []string{"grace period", "waiting period"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.texts)

	second, err := emb.Embed(context.Background(), []string{"waiting period", "maternity", "grace period"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, inner.texts, "only the new text is embedded")
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	n, err := cache.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, cache.Close())

	reopened, err := OpenEmbeddingCache(path)
	require.NoError(t, err)
	defer reopened.Close()

	inner2 := &axisEmbedder{}
	_, err = NewCachedEmbedder(inner2, reopened).Embed(context.Background(), []string{"maternity"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, inner2.calls, "vectors survive reopening")
}

// guessedDimEmbedder reports a default dimension that does not match the
// vectors it returns, as an OpenAI-compatible model missing from the known
// list does.
type guessedDimEmbedder struct {
	axisEmbedder
}

func (e *guessedDimEmbedder) Dimension() int { return 1536 }

func TestCachedEmbedder_HitsWhenConfiguredDimensionIsWrong(t *testing.T) {
	cache, err := OpenEmbeddingCache(filepath.Join(t.TempDir(), "e.db"))
	require.NoError(t, err)
	defer cache.Close()

	inner := &guessedDimEmbedder{}
	emb := NewCachedEmbedder(inner, cache)

	first, err := emb.Embed(context.Background(), []string{"grace period", "maternity"})
	require.NoError(t, err)
	second, err := emb.Embed(context.Background(), []string{"maternity", "grace period"})
	require.NoError(t, err)

	assert.EqualValues(t, 1, inner.calls, "stored vectors are served despite the configured dimension")
	assert.Equal(t, first[0], second[1])
	assert.Len(t, second[0], 3)
}

// resizedEmbedder returns vectors of a fixed length.
type resizedEmbedder struct {
	dim   int
	texts int32
}

func (e *resizedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.texts, int32(len(texts)))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
		out[i][0] = 1
	}
	return out, nil
}

func (e *resizedEmbedder) Dimension() int    { return e.dim }
func (e *resizedEmbedder) ModelName() string { return "resized" }

func TestCachedEmbedder_RecomputesWhenDimensionChanges(t *testing.T) {
	cache, err := OpenEmbeddingCache(filepath.Join(t.TempDir(), "e.db"))
	require.NoError(t, err)
	defer cache.Close()

	_, err = NewCachedEmbedder(&resizedEmbedder{dim: 2}, cache).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	inner := &resizedEmbedder{dim: 4}
	vecs, err := NewCachedEmbedder(inner, cache).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)
	assert.Len(t, vecs[1], 4)
	assert.EqualValues(t, 3, inner.texts, "b is embedded, then a and b again")

	found, err := cache.GetMany("resized", []string{Key("resized", "a")}, 4)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestCachedEmbedder_ErrorIsNotCached(t *testing.T) {
	cache, err := OpenEmbeddingCache(filepath.Join(t.TempDir(), "e.db"))
	require.NoError(t, err)
	defer cache.Close()

	_, err = NewCachedEmbedder(&axisEmbedder{err: domain.ErrEmbeddingService}, cache).Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)

	n, err := cache.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbeddingCache_KeyDependsOnModel(t *testing.T) {
	assert.NotEqual(t, Key("m1", "text"), Key("m2", "text"))
	assert.Equal(t, Key("m1", "text"), Key("m1", "text"))
	assert.NotEqual(t, Key("m", "1text"), Key("m1", "text"))
}

func TestEmbeddingCache_SchemaChangeDropsVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.db")
	cache, err := OpenEmbeddingCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.PutMany("axis", map[string][]float32{Key("axis", "x"): {1, 2, 3}}))
	require.NoError(t, cache.Close())

	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		data, _ := json.Marshal(CurrentSchemaVersion + 1)
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	}))
	require.NoError(t, db.Close())

	cache, err = OpenEmbeddingCache(path)
	require.NoError(t, err)
	defer cache.Close()

	n, err := cache.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbeddingCache_DimensionMismatchIsMiss(t *testing.T) {
	cache, err := OpenEmbeddingCache(filepath.Join(t.TempDir(), "e.db"))
	require.NoError(t, err)
	defer cache.Close()

	key := Key("axis", "x")
	require.NoError(t, cache.PutMany("axis", map[string][]float32{key: {1, 2}}))

	found, err := cache.GetMany("axis", []string{key}, 3)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = cache.GetMany("axis", []string{key}, 2)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
