package storeutil

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/ChinmayNoob/histkv/store"
)

var (
	// Zero frames keep empty values distinguishable from corrupt ones.
	encoder, _ = zstd.NewWriter(nil, zstd.WithZeroFrames(true), zstd.WithEncoderConcurrency(1))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func compress(value []byte) []byte {
	return encoder.EncodeAll(value, nil)
}

func decompress(value []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(value, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", store.ErrCorrupt, err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// CompressingStore stores values zstd-compressed. Keys are left alone, so
// ordering and prefix scans are unaffected.
type CompressingStore struct {
	st store.Store
}

var _ store.Store = (*CompressingStore)(nil)

func NewCompressingStore(st store.Store) *CompressingStore {
	return &CompressingStore{st: st}
}

func (c *CompressingStore) Get(key []byte) ([]byte, bool, error) {
	v, ok, err := c.st.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err = decompress(v)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *CompressingStore) GetBatch(keys [][]byte) ([][]byte, error) {
	vals, err := c.st.GetBatch(keys)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		if vals[i], err = decompress(v); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func (c *CompressingStore) Put(key, value []byte) error {
	return c.st.Put(key, compress(value))
}

func (c *CompressingStore) PutBatch(pairs []store.Pair) error {
	out := make([]store.Pair, len(pairs))
	for i, p := range pairs {
		out[i] = store.Pair{Key: p.Key, Value: compress(p.Value)}
	}
	return c.st.PutBatch(out)
}

func (c *CompressingStore) Remove(key []byte) error {
	return c.st.Remove(key)
}

func (c *CompressingStore) RemoveBatch(keys [][]byte) error {
	return c.st.RemoveBatch(keys)
}

func (c *CompressingStore) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	dc := decompressing(fn)
	return dc.Finish(c.st.Scan(begin, end, dc.Callback))
}

func (c *CompressingStore) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	dc := decompressing(fn)
	return dc.Finish(c.st.ScanPrefix(prefix, dc.Callback))
}

func (c *CompressingStore) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	dc := decompressing(fn)
	return dc.Finish(c.st.ScanPrefixes(prefixes, dc.Callback))
}

// Key scans carry no values and pass straight through.
func (c *CompressingStore) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return c.st.ScanKeys(begin, end, fn)
}

func (c *CompressingStore) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return c.st.ScanKeysPrefix(prefix, fn)
}

func decompressing(fn store.KeyValueFunc) *store.Catcher {
	return store.Catch(func(key, value []byte) error {
		v, err := decompress(value)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		fn(key, v)
		return nil
	})
}

// CompressingSystem wraps every store it opens in a CompressingStore.
type CompressingSystem struct {
	store.StorageSystem
}

func NewCompressingSystem(sys store.StorageSystem) *CompressingSystem {
	return &CompressingSystem{StorageSystem: sys}
}

func (c *CompressingSystem) OpenStore(name string) (store.Store, error) {
	st, err := c.StorageSystem.OpenStore(name)
	if err != nil {
		return nil, err
	}
	return NewCompressingStore(st), nil
}
