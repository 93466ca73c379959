package hist

import "github.com/ChinmayNoob/histkv/store"

// readOnly supplies the write half of store.Store for the read views.
type readOnly struct{}

func (readOnly) Put(key, value []byte) error {
	return ErrReadOnly
}

func (readOnly) PutBatch(pairs []store.Pair) error {
	return ErrReadOnly
}

func (readOnly) Remove(key []byte) error {
	return ErrReadOnly
}

func (readOnly) RemoveBatch(keys [][]byte) error {
	return ErrReadOnly
}
