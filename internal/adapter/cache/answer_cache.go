package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"docqa/internal/logger"
)

// Key fingerprints a document URL and a question. Surrounding whitespace is
// ignored on both; questions are also compared case-insensitively. The newline
// separator cannot appear in a URL, so distinct pairs never collide on the
// concatenated input.
func Key(documentURL, question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	hash := sha256.Sum256([]byte(strings.TrimSpace(documentURL) + "\n" + normalized))
	return hex.EncodeToString(hash[:])
}

// Entry is one cached answer.
type Entry struct {
	Key    string `json:"key"`
	Answer string `json:"answer"`
}

// AnswerCache is a file-backed map from Key to answer text. The whole file
// is loaded up front; mutations are written through immediately unless
// write-through is disabled, in which case Flush persists them. An empty
// path keeps the cache in memory only.
type AnswerCache struct {
	mu           sync.RWMutex
	path         string
	writeThrough bool
	entries      map[string]string
	dirty        bool
}

func New(path string, writeThrough bool) *AnswerCache {
	return &AnswerCache{
		path:         path,
		writeThrough: writeThrough,
		entries:      make(map[string]string),
	}
}

// Open creates a cache and loads its file.
func Open(path string, writeThrough bool) (*AnswerCache, error) {
	c := New(path, writeThrough)
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AnswerCache) Path() string {
	return c.path
}

// Load replaces the in-memory entries with the file contents. A missing
// file is an empty cache. An unreadable file is moved aside to
// <path>.corrupt so that the next write does not destroy it.
func (c *AnswerCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]string)
	c.dirty = false
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read answer cache: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	entries := make(map[string]string)
	if isYAML(c.path) {
		err = yaml.Unmarshal(data, &entries)
	} else {
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		aside := c.path + ".corrupt"
		logger.WithComponent("answer_cache").Warn("answer cache unreadable, starting empty",
			"path", c.path, "moved_to", aside, "error", err)
		if rerr := os.Rename(c.path, aside); rerr != nil {
			return fmt.Errorf("answer cache %s is corrupt and could not be moved aside: %w", c.path, rerr)
		}
		return nil
	}

	if entries != nil {
		c.entries = entries
	}
	return nil
}

func (c *AnswerCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	answer, ok := c.entries[key]
	return answer, ok
}

// Put stores answer under key. An existing entry is never overwritten.
func (c *AnswerCache) Put(key, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return nil
	}
	c.entries[key] = answer
	c.dirty = true

	if c.writeThrough {
		return c.persistLocked()
	}
	return nil
}

// Clear removes every entry and returns how many there were.
func (c *AnswerCache) Clear() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]string)
	c.dirty = true
	return n, c.persistLocked()
}

func (c *AnswerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot sorted by key.
func (c *AnswerCache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for k, v := range c.entries {
		out = append(out, Entry{Key: k, Answer: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Flush writes pending mutations to disk.
func (c *AnswerCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	return c.persistLocked()
}

// persistLocked writes the whole map to a temp file in the target directory
// and renames it over the cache file. Callers hold c.mu.
func (c *AnswerCache) persistLocked() error {
	if c.path == "" {
		c.dirty = false
		return nil
	}

	var (
		data []byte
		err  error
	)
	if isYAML(c.path) {
		data, err = yaml.Marshal(c.entries)
	} else {
		data, err = json.MarshalIndent(c.entries, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode answer cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write answer cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync answer cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close answer cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace answer cache: %w", err)
	}

	c.dirty = false
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
