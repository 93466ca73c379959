package memtable

import (
	"sync"

	"github.com/ChinmayNoob/histkv/store"
)

// Store is an in-memory ordered byte store. It is safe for concurrent use;
// scan callbacks run after the internal lock has been released and may call
// back into the store.
type Store struct {
	mu sync.RWMutex
	mt *Memtable
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{mt: New()}
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.mt.Get(key)
	if !ok {
		return nil, false, nil
	}
	return r.Value, true, nil
}

func (s *Store) GetBatch(keys [][]byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if r, ok := s.mt.Get(k); ok {
			out[i] = r.Value
		}
	}
	return out, nil
}

func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mt.Set(key, value)
	return nil
}

func (s *Store) PutBatch(pairs []store.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		s.mt.Set(p.Key, p.Value)
	}
	return nil
}

func (s *Store) Remove(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mt.Delete(key)
	return nil
}

func (s *Store) RemoveBatch(keys [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.mt.Delete(k)
	}
	return nil
}

func (s *Store) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	s.deliver(s.collect(begin, end, true), fn)
	return nil
}

func (s *Store) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return s.Scan(prefix, store.PrefixEnd(prefix), fn)
}

func (s *Store) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return store.ScanPrefixesOnce(prefixes, s.ScanPrefix, fn)
}

func (s *Store) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	s.deliver(s.collect(begin, end, false), fn)
	return nil
}

func (s *Store) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return s.ScanKeys(prefix, store.PrefixEnd(prefix), fn)
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mt.Len()
}

// Clear removes all records.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mt.Clear()
}

func (s *Store) collect(begin, end []byte, withValues bool) []store.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Pair
	s.mt.Ascend(begin, end, func(r Record) bool {
		p := store.Pair{Key: cloneBytes(r.Key)}
		if withValues {
			p.Value = cloneBytes(r.Value)
		}
		out = append(out, p)
		return true
	})
	return out
}

func (s *Store) deliver(pairs []store.Pair, fn store.KeyValueFunc) {
	for _, p := range pairs {
		fn(p.Key, p.Value)
	}
}
