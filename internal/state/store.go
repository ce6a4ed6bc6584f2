// Package state persists named JSON blobs: the ledger, the price cache and user preferences.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Keys of the blobs the application persists.
const (
	KeyLedger        = "ledger"
	KeyPriceHistory  = "price_history"
	KeyFetchedMonths = "fetched_months"
	KeyPrefs         = "prefs"
	KeyJupiterTokens = "jupiter_tokens"
)

// Store reads and writes named blobs. Read reports found=false when the key was never written.
type Store interface {
	Read(ctx context.Context, key string, dest any) (bool, error)
	Write(ctx context.Context, key string, v any) error
}

// MemoryStore keeps blobs in process memory as encoded JSON.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Read(_ context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Write(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return nil
}

// Keys returns the keys written so far.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	return keys
}
