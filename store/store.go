// Package store defines the ordered byte-keyed store contract that every
// backend and decorator in this module implements.
//
// Keys are ordered lexicographically over unsigned bytes. Scans are push
// style: the callback is invoked once per record, in ascending key order,
// before the scan call returns.
package store

// KeyValueFunc receives one record of a scan. For key-only scans value is nil.
// Implementations must not retain key or value after returning.
type KeyValueFunc func(key, value []byte)

// Pair is a key/value pair used by batched writes.
type Pair struct {
	Key   []byte
	Value []byte
}

// Store is an ordered byte store.
//
// Get returns ok=false for absent keys. GetBatch returns a slice aligned with
// keys where absent keys yield nil entries; present values are never nil, so an
// empty value is reported as a non-nil empty slice.
//
// Scan covers the half-open range [begin, end); a nil end means unbounded.
// ScanPrefixes delivers every matching key at most once even when prefixes
// overlap. The ScanKeys variants pass a nil value to the callback.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	GetBatch(keys [][]byte) ([][]byte, error)

	Put(key, value []byte) error
	PutBatch(pairs []Pair) error

	Remove(key []byte) error
	RemoveBatch(keys [][]byte) error

	Scan(begin, end []byte, fn KeyValueFunc) error
	ScanPrefix(prefix []byte, fn KeyValueFunc) error
	ScanPrefixes(prefixes [][]byte, fn KeyValueFunc) error

	ScanKeys(begin, end []byte, fn KeyValueFunc) error
	ScanKeysPrefix(prefix []byte, fn KeyValueFunc) error
}

// StorageSystem manages a set of independent named stores.
type StorageSystem interface {
	// OpenStore returns the store with the given name, creating it on first use.
	OpenStore(name string) (Store, error)
	// RemoveStore deletes all records of the named store.
	RemoveStore(name string) error
	Close() error
}
