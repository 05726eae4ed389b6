package slpdb

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

var prefixToken = []byte("t/") // t/<tokenID(32)> -> Metadata JSON

// Store persists token metadata summaries.
type Store struct {
	db storage.DB
}

// NewStore creates a token metadata store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put stores metadata for a token.
func (s *Store) Put(meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return s.db.Put(tokenKey(meta.TokenID), data)
}

// Get retrieves metadata for a token.
func (s *Store) Get(id types.TokenID) (*Metadata, error) {
	data, err := s.db.Get(tokenKey(id))
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &meta, nil
}

// Has checks if metadata exists for a token.
func (s *Store) Has(id types.TokenID) (bool, error) {
	return s.db.Has(tokenKey(id))
}

// SaveAll writes metadata for every token in l in one batch.
func (s *Store) SaveAll(l *Ledger) error {
	b := storage.NewBatch(s.db)
	for _, id := range l.Tokens() {
		tok, _ := l.Token(id)
		data, err := json.Marshal(tok.Metadata())
		if err != nil {
			return fmt.Errorf("token %s marshal: %w", id, err)
		}
		if err := b.Put(tokenKey(id), data); err != nil {
			return fmt.Errorf("token %s put: %w", id, err)
		}
	}
	return b.Commit()
}

// ForEach iterates over all token metadata entries.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(*Metadata) error) error {
	return s.db.ForEach(prefixToken, func(key, value []byte) error {
		// Key layout: "t/" + tokenID(32).
		if len(key) < len(prefixToken)+types.HashSize {
			return nil // Malformed key, skip.
		}
		var meta Metadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return nil // Skip corrupt entries.
		}
		copy(meta.TokenID[:], key[len(prefixToken):])
		return fn(&meta)
	})
}

// List returns all token metadata entries.
func (s *Store) List() ([]Metadata, error) {
	entries := []Metadata{}
	err := s.ForEach(func(meta *Metadata) error {
		entries = append(entries, *meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func tokenKey(id types.TokenID) []byte {
	key := make([]byte, len(prefixToken)+types.HashSize)
	copy(key, prefixToken)
	copy(key[len(prefixToken):], id[:])
	return key
}
