package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo is an LRU cache for derived results, keyed by a hash of the
// computation's inputs (dataset, sample, request). The core model is
// stateless and pure; this layer sits outside it so identical requests
// skip recomputation without the model holding hidden state.
type Memo struct {
	cache *lru.Cache[string, interface{}]
}

// NewMemo creates a memo cache holding at most size entries.
func NewMemo(size int) (*Memo, error) {
	cache, err := lru.New[string, interface{}](size)
	if err != nil {
		return nil, err
	}
	return &Memo{cache: cache}, nil
}

// Key derives a stable cache key from a label and the JSON encoding of
// its parts. Parts must marshal deterministically (structs, strings,
// numbers; Go marshals map keys in sorted order). Returns "" for
// non-marshalable parts, which disables memoization for that call.
func Key(label string, parts ...interface{}) string {
	h := sha256.New()
	h.Write([]byte(label))
	for _, part := range parts {
		b, err := json.Marshal(part)
		if err != nil {
			return ""
		}
		h.Write([]byte{0})
		h.Write(b)
	}
	return label + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get looks up a memoized value. An empty key is always a miss.
func (m *Memo) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}
	return m.cache.Get(key)
}

// Add stores a value under key. Empty keys are dropped.
func (m *Memo) Add(key string, value interface{}) {
	if key == "" {
		return
	}
	m.cache.Add(key, value)
}

// Len returns the number of cached entries.
func (m *Memo) Len() int {
	return m.cache.Len()
}
