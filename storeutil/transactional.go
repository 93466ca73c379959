package storeutil

import (
	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/store"
)

var deletionMarker = []byte{1}

// TransactionalStore buffers writes in memory until Commit. Reads and scans
// see the buffered writes on top of the main store.
//
// Commit applies puts before removals and is not atomic on the main store.
type TransactionalStore struct {
	main      store.Store
	changes   store.Store
	deletions store.Store
}

var _ store.Store = (*TransactionalStore)(nil)

func NewTransactionalStore(main store.Store) *TransactionalStore {
	return &TransactionalStore{
		main:      main,
		changes:   memtable.NewStore(),
		deletions: memtable.NewStore(),
	}
}

func (t *TransactionalStore) Get(key []byte) ([]byte, bool, error) {
	if v, ok, err := t.changes.Get(key); err != nil || ok {
		return v, ok, err
	}
	if _, deleted, err := t.deletions.Get(key); err != nil || deleted {
		return nil, false, err
	}
	return t.main.Get(key)
}

func (t *TransactionalStore) GetBatch(keys [][]byte) ([][]byte, error) {
	out, err := t.main.GetBatch(keys)
	if err != nil {
		return nil, err
	}
	deleted, err := t.deletions.GetBatch(keys)
	if err != nil {
		return nil, err
	}
	changed, err := t.changes.GetBatch(keys)
	if err != nil {
		return nil, err
	}
	for i := range out {
		switch {
		case changed[i] != nil:
			out[i] = changed[i]
		case deleted[i] != nil:
			out[i] = nil
		}
	}
	return out, nil
}

func (t *TransactionalStore) Put(key, value []byte) error {
	if err := t.deletions.Remove(key); err != nil {
		return err
	}
	return t.changes.Put(key, value)
}

func (t *TransactionalStore) PutBatch(pairs []store.Pair) error {
	keys := make([][]byte, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	if err := t.deletions.RemoveBatch(keys); err != nil {
		return err
	}
	return t.changes.PutBatch(pairs)
}

func (t *TransactionalStore) Remove(key []byte) error {
	if err := t.changes.Remove(key); err != nil {
		return err
	}
	return t.deletions.Put(key, deletionMarker)
}

func (t *TransactionalStore) RemoveBatch(keys [][]byte) error {
	if err := t.changes.RemoveBatch(keys); err != nil {
		return err
	}
	marks := make([]store.Pair, len(keys))
	for i, k := range keys {
		marks[i] = store.Pair{Key: k, Value: deletionMarker}
	}
	return t.deletions.PutBatch(marks)
}

type scanFunc func(st store.Store, fn store.KeyValueFunc) error

func (t *TransactionalStore) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	return t.merge(func(st store.Store, fn store.KeyValueFunc) error {
		return st.Scan(begin, end, fn)
	}, fn, false)
}

func (t *TransactionalStore) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return t.merge(func(st store.Store, fn store.KeyValueFunc) error {
		return st.ScanPrefix(prefix, fn)
	}, fn, false)
}

func (t *TransactionalStore) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return t.merge(func(st store.Store, fn store.KeyValueFunc) error {
		return st.ScanPrefixes(prefixes, fn)
	}, fn, false)
}

func (t *TransactionalStore) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return t.merge(func(st store.Store, fn store.KeyValueFunc) error {
		return st.ScanKeys(begin, end, fn)
	}, fn, true)
}

func (t *TransactionalStore) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return t.merge(func(st store.Store, fn store.KeyValueFunc) error {
		return st.ScanKeysPrefix(prefix, fn)
	}, fn, true)
}

// merge overlays deletions and then changes on the main store's records.
func (t *TransactionalStore) merge(scan scanFunc, fn store.KeyValueFunc, keysOnly bool) error {
	merged := memtable.New()
	set := func(key, value []byte) { merged.Set(key, value) }
	if err := scan(t.main, set); err != nil {
		return err
	}
	if err := scan(t.deletions, func(key, _ []byte) { merged.Delete(key) }); err != nil {
		return err
	}
	if err := scan(t.changes, set); err != nil {
		return err
	}
	merged.Ascend(nil, nil, func(r memtable.Record) bool {
		if keysOnly {
			fn(r.Key, nil)
		} else {
			fn(r.Key, r.Value)
		}
		return true
	})
	return nil
}

// Commit writes the buffered changes to the main store and clears the
// buffers.
func (t *TransactionalStore) Commit() error {
	var puts []store.Pair
	if err := t.changes.Scan(nil, nil, func(key, value []byte) {
		puts = append(puts, store.Pair{Key: store.CloneBytes(key), Value: store.CloneBytes(value)})
	}); err != nil {
		return err
	}
	removals, err := ListKeys(t.deletions)
	if err != nil {
		return err
	}
	if err := t.main.PutBatch(puts); err != nil {
		return err
	}
	if err := t.main.RemoveBatch(removals); err != nil {
		return err
	}
	return t.Rollback()
}

// Rollback discards the buffered changes.
func (t *TransactionalStore) Rollback() error {
	if err := ClearStore(t.changes); err != nil {
		return err
	}
	return ClearStore(t.deletions)
}
