package db

import (
	"encoding/binary"

	"github.com/ChinmayNoob/histkv/store"
)

// System serves named stores as key-prefixed partitions of a single DB. The
// prefix is the uvarint length of the name followed by the name, so no
// store's prefix can be a prefix of another's.
type System struct {
	db *DB
}

var _ store.StorageSystem = (*System)(nil)

func OpenSystem(opts Options) (*System, error) {
	d, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return &System{db: d}, nil
}

// DB exposes the underlying engine, e.g. for Compact.
func (s *System) DB() *DB {
	return s.db
}

func (s *System) OpenStore(name string) (store.Store, error) {
	return newPartition(s.db, name), nil
}

func (s *System) RemoveStore(name string) error {
	p := newPartition(s.db, name)
	var keys [][]byte
	if err := s.db.ScanKeysPrefix(p.prefix, func(key, _ []byte) {
		keys = append(keys, store.CloneBytes(key))
	}); err != nil {
		return err
	}
	return s.db.RemoveBatch(keys)
}

func (s *System) Close() error {
	return s.db.Close()
}

type partition struct {
	db     *DB
	prefix []byte
}

var _ store.Store = (*partition)(nil)

func newPartition(d *DB, name string) *partition {
	prefix := binary.AppendUvarint(nil, uint64(len(name)))
	return &partition{db: d, prefix: append(prefix, name...)}
}

func (p *partition) ext(key []byte) []byte {
	return store.Concat(p.prefix, key)
}

func (p *partition) exts(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = p.ext(k)
	}
	return out
}

func (p *partition) strip(fn store.KeyValueFunc) store.KeyValueFunc {
	return func(key, value []byte) {
		fn(key[len(p.prefix):], value)
	}
}

func (p *partition) Get(key []byte) ([]byte, bool, error) {
	return p.db.Get(p.ext(key))
}

func (p *partition) GetBatch(keys [][]byte) ([][]byte, error) {
	return p.db.GetBatch(p.exts(keys))
}

func (p *partition) Put(key, value []byte) error {
	return p.db.Put(p.ext(key), value)
}

func (p *partition) PutBatch(pairs []store.Pair) error {
	ext := make([]store.Pair, len(pairs))
	for i, kv := range pairs {
		ext[i] = store.Pair{Key: p.ext(kv.Key), Value: kv.Value}
	}
	return p.db.PutBatch(ext)
}

func (p *partition) Remove(key []byte) error {
	return p.db.Remove(p.ext(key))
}

func (p *partition) RemoveBatch(keys [][]byte) error {
	return p.db.RemoveBatch(p.exts(keys))
}

func (p *partition) bounds(begin, end []byte) ([]byte, []byte) {
	if end == nil {
		return p.ext(begin), store.PrefixEnd(p.prefix)
	}
	return p.ext(begin), p.ext(end)
}

func (p *partition) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	b, e := p.bounds(begin, end)
	return p.db.Scan(b, e, p.strip(fn))
}

func (p *partition) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return p.db.ScanPrefix(p.ext(prefix), p.strip(fn))
}

func (p *partition) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return store.ScanPrefixesOnce(prefixes, p.ScanPrefix, fn)
}

func (p *partition) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	b, e := p.bounds(begin, end)
	return p.db.ScanKeys(b, e, p.strip(fn))
}

func (p *partition) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return p.db.ScanKeysPrefix(p.ext(prefix), p.strip(fn))
}
