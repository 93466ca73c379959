package storeutil

import "github.com/ChinmayNoob/histkv/store"

// ReadOnlyStore passes reads through and rejects every write.
type ReadOnlyStore struct {
	st store.Store
}

var _ store.Store = (*ReadOnlyStore)(nil)

func NewReadOnlyStore(st store.Store) *ReadOnlyStore {
	return &ReadOnlyStore{st: st}
}

func (r *ReadOnlyStore) Get(key []byte) ([]byte, bool, error) { return r.st.Get(key) }

func (r *ReadOnlyStore) GetBatch(keys [][]byte) ([][]byte, error) { return r.st.GetBatch(keys) }

func (r *ReadOnlyStore) Put(key, value []byte) error { return ErrReadOnly }

func (r *ReadOnlyStore) PutBatch(pairs []store.Pair) error { return ErrReadOnly }

func (r *ReadOnlyStore) Remove(key []byte) error { return ErrReadOnly }

func (r *ReadOnlyStore) RemoveBatch(keys [][]byte) error { return ErrReadOnly }

func (r *ReadOnlyStore) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	return r.st.Scan(begin, end, fn)
}

func (r *ReadOnlyStore) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return r.st.ScanPrefix(prefix, fn)
}

func (r *ReadOnlyStore) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return r.st.ScanPrefixes(prefixes, fn)
}

func (r *ReadOnlyStore) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return r.st.ScanKeys(begin, end, fn)
}

func (r *ReadOnlyStore) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return r.st.ScanKeysPrefix(prefix, fn)
}
