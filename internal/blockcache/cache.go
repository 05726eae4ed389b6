// Package blockcache keeps hydrated blocks by height so a restart can replay
// them without asking the node again.
package blockcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/internal/storage"
)

var (
	// ErrMiss is returned when no block is cached at a height.
	ErrMiss = errors.New("block not cached")
	// ErrCorrupt is returned when a stored entry fails its checksum.
	ErrCorrupt = errors.New("cached block corrupt")
)

const (
	keyPrefix    = "b/"
	checksumSize = 8
)

// DefaultSize is the in-memory entry count used when size is not positive.
const DefaultSize = 256

// Cache stores encoded blocks in a storage.DB with an in-memory LRU in front.
// Each stored value is an xxhash64 checksum followed by the block bytes.
type Cache struct {
	db  storage.DB
	mem *lru.Cache[uint32, []byte]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Memory int    `json:"memory"`
}

// New creates a cache over db keeping up to size blocks in memory.
func New(db storage.DB, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	mem, err := lru.New[uint32, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("lru: %w", err)
	}
	return &Cache{db: db, mem: mem}, nil
}

func heightKey(height uint32) []byte {
	k := make([]byte, len(keyPrefix)+4)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint32(k[len(keyPrefix):], height)
	return k
}

// Put stores the block bytes for height, replacing any previous entry.
func (c *Cache) Put(height uint32, data []byte) error {
	v := make([]byte, checksumSize+len(data))
	binary.BigEndian.PutUint64(v, xxhash.Sum64(data))
	copy(v[checksumSize:], data)
	if err := c.db.Put(heightKey(height), v); err != nil {
		return fmt.Errorf("put block %d: %w", height, err)
	}
	c.mem.Add(height, v[checksumSize:])
	return nil
}

// Get returns the block bytes for height. A corrupt entry is removed and
// reported as ErrCorrupt so the caller can refetch it.
func (c *Cache) Get(height uint32) ([]byte, error) {
	if data, ok := c.mem.Get(height); ok {
		c.hits.Add(1)
		return data, nil
	}
	v, err := c.db.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		c.misses.Add(1)
		return nil, fmt.Errorf("height %d: %w", height, ErrMiss)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", height, err)
	}
	if len(v) < checksumSize || binary.BigEndian.Uint64(v) != xxhash.Sum64(v[checksumSize:]) {
		c.misses.Add(1)
		log.Storage.Warn().Uint32("height", height).Msg("Dropping corrupt cached block")
		if derr := c.db.Delete(heightKey(height)); derr != nil {
			log.Storage.Error().Err(derr).Uint32("height", height).Msg("Failed to delete corrupt cached block")
		}
		return nil, fmt.Errorf("height %d: %w", height, ErrCorrupt)
	}
	data := v[checksumSize:]
	c.mem.Add(height, data)
	c.hits.Add(1)
	return data, nil
}

// Has reports whether a block is stored at height. The checksum is not
// verified.
func (c *Cache) Has(height uint32) (bool, error) {
	if c.mem.Contains(height) {
		return true, nil
	}
	return c.db.Has(heightKey(height))
}

// Delete removes the entry at height. Deleting a missing entry is not an error.
func (c *Cache) Delete(height uint32) error {
	c.mem.Remove(height)
	if err := c.db.Delete(heightKey(height)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete block %d: %w", height, err)
	}
	return nil
}

// DeleteAbove removes every entry above height, used after a rollback.
func (c *Cache) DeleteAbove(height uint32) (int, error) {
	var stale []uint32
	err := c.db.ForEach([]byte(keyPrefix), func(key, _ []byte) error {
		if len(key) != len(keyPrefix)+4 {
			return nil
		}
		if h := binary.BigEndian.Uint32(key[len(keyPrefix):]); h > height {
			stale = append(stale, h)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache: %w", err)
	}
	for _, h := range stale {
		if err := c.Delete(h); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Memory: c.mem.Len(),
	}
}
