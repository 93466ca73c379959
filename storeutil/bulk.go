package storeutil

import "github.com/ChinmayNoob/histkv/store"

// ListKeys returns all keys of st in ascending order.
func ListKeys(st store.Store) ([][]byte, error) {
	var keys [][]byte
	err := st.ScanKeysPrefix(nil, func(key, _ []byte) {
		keys = append(keys, store.CloneBytes(key))
	})
	return keys, err
}

// ListStringKeys is ListKeys with keys converted to strings.
func ListStringKeys(st store.Store) ([]string, error) {
	var keys []string
	err := st.ScanKeysPrefix(nil, func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys, err
}

// KeyCount returns the number of keys in st.
func KeyCount(st store.Store) (int, error) {
	var n int
	err := st.ScanKeysPrefix(nil, func(_, _ []byte) {
		n++
	})
	return n, err
}

// DeleteRange removes all keys in [begin, end). A nil end is unbounded.
func DeleteRange(st store.Store, begin, end []byte) error {
	var keys [][]byte
	if err := st.ScanKeys(begin, end, func(key, _ []byte) {
		keys = append(keys, store.CloneBytes(key))
	}); err != nil {
		return err
	}
	return st.RemoveBatch(keys)
}

// ClearStore removes every key of st.
func ClearStore(st store.Store) error {
	keys, err := ListKeys(st)
	if err != nil {
		return err
	}
	return st.RemoveBatch(keys)
}

// ClearNamedStore clears the named store of sys.
func ClearNamedStore(sys store.StorageSystem, name string) error {
	st, err := sys.OpenStore(name)
	if err != nil {
		return err
	}
	return ClearStore(st)
}
