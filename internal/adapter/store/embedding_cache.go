package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"docqa/internal/logger"
	"docqa/internal/port"
)

// CurrentSchemaVersion is bumped whenever the stored vector encoding
// changes. Opening a cache written with another version drops its vectors.
const CurrentSchemaVersion = 1

var (
	bucketVectors    = []byte("vectors")
	bucketMeta       = []byte("meta")
	keySchemaVersion = []byte("schema_version")
)

type storedVector struct {
	Model  string    `json:"model"`
	Vector []float32 `json:"v"`
}

// EmbeddingCache persists chunk embeddings in a bbolt file so that
// re-ingesting a document does not pay for unchanged chunks again.
type EmbeddingCache struct {
	db *bbolt.DB
}

func OpenEmbeddingCache(path string) (*EmbeddingCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		version := 0
		if data := meta.Get(keySchemaVersion); data != nil {
			_ = json.Unmarshal(data, &version)
		}
		if version != CurrentSchemaVersion && tx.Bucket(bucketVectors) != nil {
			if err := tx.DeleteBucket(bucketVectors); err != nil {
				return err
			}
		}
		if _, err := tx.CreateBucketIfNotExists(bucketVectors); err != nil {
			return err
		}

		data, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return meta.Put(keySchemaVersion, data)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare embedding cache: %w", err)
	}

	return &EmbeddingCache{db: db}, nil
}

func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

// Key fingerprints a text under a given model.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// GetMany returns the cached vectors for keys; missing keys are absent
// from the map. Vectors of the wrong dimension are treated as missing.
func (c *EmbeddingCache) GetMany(model string, keys []string, dimension int) (map[string][]float32, error) {
	found := make(map[string][]float32)
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, key := range keys {
			data := b.Get([]byte(key))
			if data == nil {
				continue
			}
			var stored storedVector
			if err := json.Unmarshal(data, &stored); err != nil {
				continue // Skip corrupted entries
			}
			if stored.Model != model || (dimension > 0 && len(stored.Vector) != dimension) {
				continue
			}
			found[key] = stored.Vector
		}
		return nil
	})
	return found, err
}

func (c *EmbeddingCache) PutMany(model string, entries map[string][]float32) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for key, vec := range entries {
			data, err := json.Marshal(storedVector{Model: model, Vector: vec})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of cached vectors.
func (c *EmbeddingCache) Count() (int, error) {
	count := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketVectors).Stats().KeyN
		return nil
	})
	return count, err
}

// CachedEmbedder serves embeddings from an EmbeddingCache and forwards only
// the misses to the wrapped embedder. Cached vectors are validated against
// the length of vectors the embedder actually returns, not its configured
// Dimension, which may be a guess for unknown models.
type CachedEmbedder struct {
	inner    port.Embedder
	cache    *EmbeddingCache
	warnOnce sync.Once
}

func NewCachedEmbedder(inner port.Embedder, cache *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.inner.ModelName()
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = Key(model, t)
	}

	log := logger.FromContext(ctx).With("component", "embedding_cache")

	cached, err := e.cache.GetMany(model, keys, 0)
	if err != nil {
		log.Warn("embedding cache read failed", "error", err)
		cached = map[string][]float32{}
	}

	cachedDim, ok := uniformLength(cached)
	if !ok {
		log.Warn("cached vectors disagree on dimension, recomputing")
		cached = map[string][]float32{}
		cachedDim = 0
	}
	if cachedDim > 0 && cachedDim != e.inner.Dimension() {
		e.warnOnce.Do(func() {
			log.Warn("cached vector length differs from configured dimension",
				"model", model, "cached", cachedDim, "configured", e.inner.Dimension())
		})
	}

	var missTexts []string
	var missIdx []int
	for i, key := range keys {
		if _, ok := cached[key]; !ok {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
		}
	}

	out := make([][]float32, len(texts))
	for i, key := range keys {
		out[i] = cached[key]
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	// The model now produces vectors of another length; stored ones are stale.
	if cachedDim > 0 && len(vecs[0]) != cachedDim {
		log.Warn("embedding dimension changed, recomputing cached vectors",
			"model", model, "cached", cachedDim, "current", len(vecs[0]))
		return e.recompute(ctx, texts, keys)
	}

	fresh := make(map[string][]float32, len(vecs))
	for j, i := range missIdx {
		out[i] = vecs[j]
		fresh[keys[i]] = vecs[j]
	}
	if err := e.cache.PutMany(model, fresh); err != nil {
		log.Warn("embedding cache write failed", "error", err)
	}

	log.Debug("embedded texts", "cached", len(texts)-len(missTexts), "computed", len(missTexts))
	return out, nil
}

func (e *CachedEmbedder) recompute(ctx context.Context, texts, keys []string) ([][]float32, error) {
	vecs, err := e.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	fresh := make(map[string][]float32, len(vecs))
	for i, v := range vecs {
		fresh[keys[i]] = v
	}
	if err := e.cache.PutMany(e.inner.ModelName(), fresh); err != nil {
		logger.FromContext(ctx).Warn("embedding cache write failed", "component", "embedding_cache", "error", err)
	}
	return vecs, nil
}

// uniformLength returns the common vector length, or false when vectors
// disagree. An empty map has length 0.
func uniformLength(vecs map[string][]float32) (int, bool) {
	n := 0
	for _, v := range vecs {
		if n == 0 {
			n = len(v)
		} else if len(v) != n {
			return 0, false
		}
	}
	return n, true
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}
