package hist

import (
	"bytes"

	"github.com/ChinmayNoob/histkv/store"
)

// HeadReadView exposes the latest value of every key. Writes fail with
// ErrReadOnly.
type HeadReadView struct {
	readOnly
	st store.Store
}

var _ store.Store = (*HeadReadView)(nil)

// NewHeadReadView returns the current-state view of the historized store st.
func NewHeadReadView(st store.Store) *HeadReadView {
	return &HeadReadView{st: st}
}

func (v *HeadReadView) Get(key []byte) ([]byte, bool, error) {
	return v.st.Get(HeadKey(key))
}

func (v *HeadReadView) GetBatch(keys [][]byte) ([][]byte, error) {
	return v.st.GetBatch(HeadKeys(keys))
}

func (v *HeadReadView) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	return v.st.Scan(HeadKey(begin), headEnd(end), stripHead(fn))
}

func (v *HeadReadView) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return v.st.ScanPrefix(HeadKey(prefix), stripHead(fn))
}

func (v *HeadReadView) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return v.st.ScanPrefixes(HeadKeys(prefixes), stripHead(fn))
}

func (v *HeadReadView) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return v.st.ScanKeys(HeadKey(begin), headEnd(end), stripHead(fn))
}

func (v *HeadReadView) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return v.st.ScanKeysPrefix(HeadKey(prefix), stripHead(fn))
}

// headEnd maps an exclusive end bound into head key space; nil stays
// unbounded within the head records.
func headEnd(end []byte) []byte {
	if end == nil {
		return store.PrefixEnd(headPrefix)
	}
	return HeadKey(end)
}

func stripHead(fn store.KeyValueFunc) store.KeyValueFunc {
	return func(key, value []byte) {
		fn(StripHeadPrefix(key), value)
	}
}

// HeadWriteView writes every change as a revision at a fixed timestamp and
// keeps the head records current. Reads behave like HeadReadView.
//
// The revision and head records of one Put go out in a single PutBatch; no
// further atomicity is provided.
type HeadWriteView struct {
	*HeadReadView
	ts     int64
	suffix []byte
}

var _ store.Store = (*HeadWriteView)(nil)

func NewHeadWriteView(st store.Store, ts int64) (*HeadWriteView, error) {
	if err := checkTimestamp(ts); err != nil {
		return nil, err
	}
	return &HeadWriteView{
		HeadReadView: NewHeadReadView(st),
		ts:           ts,
		suffix:       TimestampSuffix(ts),
	}, nil
}

// Timestamp is the revision timestamp of all writes through the view.
func (v *HeadWriteView) Timestamp() int64 {
	return v.ts
}

func (v *HeadWriteView) Put(key, value []byte) error {
	return v.PutBatch([]store.Pair{{Key: key, Value: value}})
}

func (v *HeadWriteView) PutBatch(pairs []store.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]store.Pair, 0, 2*len(pairs))
	for _, p := range pairs {
		if err := checkKey(p.Key); err != nil {
			return err
		}
		if IsTombstone(p.Value) {
			return ErrReservedValue
		}
		out = append(out,
			store.Pair{Key: RevisionKey(p.Key, v.suffix), Value: p.Value},
			store.Pair{Key: HeadKey(p.Key), Value: p.Value})
	}
	return v.st.PutBatch(out)
}

func (v *HeadWriteView) Remove(key []byte) error {
	return v.RemoveBatch([][]byte{key})
}

func (v *HeadWriteView) RemoveBatch(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	revs := make([]store.Pair, len(keys))
	for i, k := range keys {
		if err := checkKey(k); err != nil {
			return err
		}
		revs[i] = store.Pair{Key: RevisionKey(k, v.suffix), Value: Tombstone()}
	}
	if err := v.st.PutBatch(revs); err != nil {
		return err
	}
	return v.st.RemoveBatch(HeadKeys(keys))
}

// checkKey rejects keys whose encodings would collide with head records or
// be misread as revision keys.
func checkKey(key []byte) error {
	if bytes.HasPrefix(key, headPrefix) {
		return ErrReservedKey
	}
	if len(key) > 0 && key[len(key)-1] == Separator {
		return ErrReservedKey
	}
	return nil
}
