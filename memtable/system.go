package memtable

import (
	"sync"

	"github.com/ChinmayNoob/histkv/store"
)

// System is an in-memory storage system. Stores live until RemoveStore clears
// them or the process exits.
type System struct {
	mu     sync.Mutex
	stores map[string]*Store
}

var _ store.StorageSystem = (*System)(nil)

func NewSystem() *System {
	return &System{stores: make(map[string]*Store)}
}

func (s *System) OpenStore(name string) (store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[name]
	if !ok {
		st = NewStore()
		s.stores[name] = st
	}
	return st, nil
}

// RemoveStore clears the named store; handles opened earlier observe the empty
// store.
func (s *System) RemoveStore(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[name]; ok {
		st.Clear()
	}
	return nil
}

func (s *System) Close() error {
	return nil
}
