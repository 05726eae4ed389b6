package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble/v2"

	"github.com/Klingon-tech/slpgraph/internal/log"
)

// pebbleLogger routes pebble's internal messages to the storage logger.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Storage.Debug().Str("engine", "pebble").Msg(fmt.Sprintf(format, args...))
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Storage.Error().Str("engine", "pebble").Msg(fmt.Sprintf(format, args...))
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Storage.Fatal().Str("engine", "pebble").Msg(fmt.Sprintf(format, args...))
}

// PebbleDB implements DB using Pebble.
type PebbleDB struct {
	db *pebble.DB
}

// NewPebble creates a new Pebble database at the given path.
func NewPebble(path string) (*PebbleDB, error) {
	db, err := pebble.Open(path, &pebble.Options{Logger: pebbleLogger{}})
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &PebbleDB{db: db}, nil
}

// Get retrieves a value by key.
func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

// Put stores a key-value pair.
func (p *PebbleDB) Put(key, value []byte) error {
	if err := p.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("pebble put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (p *PebbleDB) Delete(key []byte) error {
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

// Has checks if a key exists.
func (p *PebbleDB) Has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebble has: %w", err)
	}
	closer.Close()
	return true, nil
}

// ForEach iterates over all keys with the given prefix.
func (p *PebbleDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// prefixEnd returns the smallest key greater than every key with prefix, or
// nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// NewBatch creates an atomic write batch.
func (p *PebbleDB) NewBatch() Batch {
	return &pebbleBatch{b: p.db.NewBatch()}
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (pb *pebbleBatch) Put(key, value []byte) error {
	return pb.b.Set(key, value, nil)
}

func (pb *pebbleBatch) Delete(key []byte) error {
	return pb.b.Delete(key, nil)
}

func (pb *pebbleBatch) Commit() error {
	if err := pb.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble batch: %w", err)
	}
	return pb.b.Close()
}

// Close flushes and closes the database.
func (p *PebbleDB) Close() error {
	if err := p.db.Flush(); err != nil {
		log.Storage.Warn().Err(err).Msg("pebble flush before close failed")
	}
	return p.db.Close()
}
