// ABOUTME: Badger-backed cache in front of a content generator
// ABOUTME: Re-runs reuse previously generated text instead of re-calling the LLM
package content

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// Cache wraps a Generator with a durable KV cache keyed by the request
// content. Only successful generations are stored; ErrUnavailable is never
// cached, so a recovered capability is retried on the next run.
type Cache struct {
	db    *badger.DB
	inner Generator
}

// OpenCache opens (creating if needed) the cache at dir.
func OpenCache(dir string, inner Generator) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("content: open cache: %w", err)
	}
	return &Cache{db: db, inner: inner}, nil
}

// Close releases the badger handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Generate(ctx context.Context, kind Kind, cc Context) (string, error) {
	key := cacheKey(kind, cc)

	var cached []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		cached, err = item.ValueCopy(nil)
		return err
	})
	if err == nil {
		return string(cached), nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("content: cache read: %w", err)
	}

	text, err := c.inner.Generate(ctx, kind, cc)
	if err != nil {
		return "", err
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(text))
	}); err != nil {
		// A failed cache write does not invalidate the generated text.
		return text, nil
	}
	return text, nil
}

func cacheKey(kind Kind, cc Context) []byte {
	payload, _ := json.Marshal(cc)
	sum := sha256.Sum256(append([]byte(kind+":"), payload...))
	return sum[:]
}
