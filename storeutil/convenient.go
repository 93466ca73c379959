package storeutil

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ChinmayNoob/histkv/store"
)

// ConvenientStore adds string-keyed and typed access to a store. Typed
// values are CBOR encoded.
type ConvenientStore struct {
	store.Store
}

func NewConvenientStore(st store.Store) *ConvenientStore {
	if cs, ok := st.(*ConvenientStore); ok {
		return cs
	}
	return &ConvenientStore{Store: st}
}

func (c *ConvenientStore) GetString(key string) (string, bool, error) {
	v, ok, err := c.Get([]byte(key))
	return string(v), ok, err
}

func (c *ConvenientStore) PutString(key, value string) error {
	return c.Put([]byte(key), []byte(value))
}

func (c *ConvenientStore) RemoveString(key string) error {
	return c.Remove([]byte(key))
}

func (c *ConvenientStore) RemoveStrings(keys []string) error {
	return c.RemoveBatch(stringsToBytes(keys))
}

// GetStrings is GetBatch for string keys. Absent keys are left out of the
// result map.
func (c *ConvenientStore) GetStrings(keys []string) (map[string][]byte, error) {
	vals, err := c.GetBatch(stringsToBytes(keys))
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v != nil {
			out[keys[i]] = v
		}
	}
	return out, nil
}

// PutObject stores the CBOR encoding of v.
func (c *ConvenientStore) PutObject(key string, v any) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %v", store.ErrStorage, key, err)
	}
	return c.Put([]byte(key), b)
}

// GetObject decodes the value at key into out. ok is false when the key is
// absent, leaving out untouched.
func (c *ConvenientStore) GetObject(key string, out any) (bool, error) {
	b, ok, err := c.Get([]byte(key))
	if err != nil || !ok {
		return false, err
	}
	if err := cbor.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("%w: decode %q: %v", store.ErrCorrupt, key, err)
	}
	return true, nil
}

// ScanStringPrefix scans prefix and hands keys to fn as strings.
func (c *ConvenientStore) ScanStringPrefix(prefix string, fn func(key string, value []byte)) error {
	return c.ScanPrefix([]byte(prefix), func(key, value []byte) {
		fn(string(key), value)
	})
}

func stringsToBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}
