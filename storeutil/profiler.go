package storeutil

import (
	"sync/atomic"
	"time"

	"github.com/ChinmayNoob/histkv/store"
)

// Profiler counts the calls made through the stores it decorates and the
// time spent in them, scans including their callbacks.
type Profiler struct {
	nanos atomic.Int64
	calls atomic.Int64
}

func (p *Profiler) Calls() int64 {
	return p.calls.Load()
}

func (p *Profiler) Elapsed() time.Duration {
	return time.Duration(p.nanos.Load())
}

func (p *Profiler) Reset() {
	p.nanos.Store(0)
	p.calls.Store(0)
}

func (p *Profiler) report(start time.Time) {
	p.nanos.Add(int64(time.Since(start)))
	p.calls.Add(1)
}

// Decorate returns a system whose stores report to p.
func (p *Profiler) Decorate(sys store.StorageSystem) store.StorageSystem {
	return &profilingSystem{StorageSystem: sys, p: p}
}

// DecorateStore returns st reporting to p.
func (p *Profiler) DecorateStore(st store.Store) store.Store {
	return &profilingStore{st: st, p: p}
}

type profilingSystem struct {
	store.StorageSystem
	p *Profiler
}

func (s *profilingSystem) OpenStore(name string) (store.Store, error) {
	st, err := s.StorageSystem.OpenStore(name)
	if err != nil {
		return nil, err
	}
	return s.p.DecorateStore(st), nil
}

type profilingStore struct {
	st store.Store
	p  *Profiler
}

func (s *profilingStore) Get(key []byte) ([]byte, bool, error) {
	defer s.p.report(time.Now())
	return s.st.Get(key)
}

func (s *profilingStore) GetBatch(keys [][]byte) ([][]byte, error) {
	defer s.p.report(time.Now())
	return s.st.GetBatch(keys)
}

func (s *profilingStore) Put(key, value []byte) error {
	defer s.p.report(time.Now())
	return s.st.Put(key, value)
}

func (s *profilingStore) PutBatch(pairs []store.Pair) error {
	defer s.p.report(time.Now())
	return s.st.PutBatch(pairs)
}

func (s *profilingStore) Remove(key []byte) error {
	defer s.p.report(time.Now())
	return s.st.Remove(key)
}

func (s *profilingStore) RemoveBatch(keys [][]byte) error {
	defer s.p.report(time.Now())
	return s.st.RemoveBatch(keys)
}

func (s *profilingStore) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	defer s.p.report(time.Now())
	return s.st.Scan(begin, end, fn)
}

func (s *profilingStore) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	defer s.p.report(time.Now())
	return s.st.ScanPrefix(prefix, fn)
}

func (s *profilingStore) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	defer s.p.report(time.Now())
	return s.st.ScanPrefixes(prefixes, fn)
}

func (s *profilingStore) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	defer s.p.report(time.Now())
	return s.st.ScanKeys(begin, end, fn)
}

func (s *profilingStore) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	defer s.p.report(time.Now())
	return s.st.ScanKeysPrefix(prefix, fn)
}
