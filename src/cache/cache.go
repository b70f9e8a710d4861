// Package cache implements the local key/value Cache external interface
// (spec.md §6), partitioned by (manifestHash, dbName) into Buckets holding
// the manifest, _heads, and _localHeads slots.
//
// Backed by github.com/dgraph-io/badger/v4, the embedded key/value store
// used for exactly this role (a local, durable, per-process cache) in
// _examples/i5heu-ouroboros-db/internal/keyValStore/keyValStore.go.
package cache

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	logs "github.com/danmuck/smplog"
)

const (
	SlotManifest   = "manifest"
	SlotHeads      = "_heads"
	SlotLocalHeads = "_localHeads"
)

// Cache owns one badger.DB and hands out exclusively-held Buckets over it.
type Cache struct {
	db *badger.DB

	mu     sync.Mutex
	opened map[string]struct{}
}

// Open opens (creating if absent) a badger database rooted at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger db at %s: %w", dir, err)
	}
	return &Cache{db: db, opened: make(map[string]struct{})}, nil
}

// bucketKey identifies the (manifestHash, dbName) partition.
func bucketKey(root, path string) string {
	return root + "/" + path
}

// OpenBucket returns the Bucket for (root, path), exclusively held by the
// caller until Close. Per spec.md §9 design notes, each Store holds its
// own bucket handle rather than a single cache field reassigned on every
// open — opening a second database does not evict the first.
func (c *Cache) OpenBucket(root, path string) (*Bucket, error) {
	key := bucketKey(root, path)

	c.mu.Lock()
	if _, held := c.opened[key]; held {
		c.mu.Unlock()
		return nil, fmt.Errorf("cache: bucket %s already held", key)
	}
	c.opened[key] = struct{}{}
	c.mu.Unlock()

	return &Bucket{cache: c, key: key}, nil
}

// Close closes the underlying badger database. All buckets must have
// released first; outstanding buckets simply stop working afterward.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Bucket is a namespaced handle over one database's cache slots.
type Bucket struct {
	cache *Cache
	key   string
}

func (b *Bucket) slotKey(slot string) []byte {
	return []byte(b.key + "/" + slot)
}

// Get returns the raw bytes stored at slot, or (nil, false) if absent.
func (b *Bucket) Get(slot string) ([]byte, bool) {
	var out []byte
	err := b.cache.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.slotKey(slot))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

// Set writes raw bytes to slot.
func (b *Bucket) Set(slot string, value []byte) error {
	err := b.cache.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.slotKey(slot), value)
	})
	if err != nil {
		return fmt.Errorf("cache: set %s/%s: %w", b.key, slot, err)
	}
	return nil
}

// Has reports whether slot has a value.
func (b *Bucket) Has(slot string) bool {
	_, ok := b.Get(slot)
	return ok
}

// Close releases the bucket's exclusive hold, allowing a later OpenBucket
// on the same (root, path) to succeed.
func (b *Bucket) Close() error {
	b.cache.mu.Lock()
	delete(b.cache.opened, b.key)
	b.cache.mu.Unlock()
	logs.Debugf("cache: released bucket %s", b.key)
	return nil
}
