package hist

import (
	"bytes"
	"sort"

	"github.com/ChinmayNoob/histkv/store"
)

const day = 24 * 60 * 60 * 1000

// searchWindows are the spans, in milliseconds before the read timestamp,
// that Get tries before scanning the complete history of a key.
var searchWindows = []int64{1 * day, 16 * day, 256 * day}

// TimestampReadView shows the store as it was at a fixed timestamp: every key
// maps to the value of its newest revision not after that timestamp, and keys
// whose newest such revision is a tombstone are absent. Writes fail with
// ErrReadOnly.
type TimestampReadView struct {
	readOnly
	st     store.Store
	ts     int64
	suffix []byte
}

var _ store.Store = (*TimestampReadView)(nil)

func NewTimestampReadView(st store.Store, ts int64) (*TimestampReadView, error) {
	if err := checkTimestamp(ts); err != nil {
		return nil, err
	}
	return &TimestampReadView{st: st, ts: ts, suffix: TimestampSuffix(ts)}, nil
}

func (v *TimestampReadView) Timestamp() int64 {
	return v.ts
}

// Get looks at progressively wider windows before the read timestamp, since
// recent revisions are the common case, and falls back to the whole history
// of key.
func (v *TimestampReadView) Get(key []byte) ([]byte, bool, error) {
	c := newCollector(v.suffix, func(orig []byte) bool {
		return bytes.Equal(orig, key)
	})
	// The successor of the revision key at ts, so that ts itself is included.
	end := append(RevisionKey(key, v.suffix), 0)
	for _, w := range searchWindows {
		start := v.ts - w
		if start <= 0 {
			break
		}
		begin := RevisionKey(key, TimestampSuffix(start))
		if err := v.st.Scan(begin, end, c.add); err != nil {
			return nil, false, err
		}
		if e, ok := c.entry(key); ok {
			return e.result()
		}
		end = begin
	}
	if err := v.st.Scan(revisionPrefix(key), end, c.add); err != nil {
		return nil, false, err
	}
	if e, ok := c.entry(key); ok {
		return e.result()
	}
	return nil, false, nil
}

func (v *TimestampReadView) GetBatch(keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		val, ok, err := v.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = val
		}
	}
	return out, nil
}

func (v *TimestampReadView) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	c := newCollector(v.suffix, func(orig []byte) bool {
		return store.InRange(orig, begin, end)
	})
	if err := v.st.Scan(begin, end, c.add); err != nil {
		return err
	}
	// Revision keys of a proper prefix of end sort after end itself.
	for i := len(end) - 1; i >= 0; i-- {
		p := end[:i]
		if bytes.Compare(p, begin) < 0 {
			break
		}
		if err := v.st.ScanPrefix(revisionPrefix(p), c.add); err != nil {
			return err
		}
	}
	c.deliver(fn)
	return nil
}

func (v *TimestampReadView) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return v.ScanPrefixes([][]byte{prefix}, fn)
}

func (v *TimestampReadView) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	c := newCollector(v.suffix, func(orig []byte) bool {
		for _, p := range prefixes {
			if bytes.HasPrefix(orig, p) {
				return true
			}
		}
		return false
	})
	if err := v.st.ScanPrefixes(prefixes, c.add); err != nil {
		return err
	}
	c.deliver(fn)
	return nil
}

func (v *TimestampReadView) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return v.Scan(begin, end, dropValue(fn))
}

func (v *TimestampReadView) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return v.ScanPrefix(prefix, dropValue(fn))
}

func dropValue(fn store.KeyValueFunc) store.KeyValueFunc {
	return func(key, _ []byte) {
		fn(key, nil)
	}
}

// collector gathers revision records from raw scans and keeps, per original
// key, the newest revision whose timestamp suffix is not after limit.
type collector struct {
	limit  []byte
	accept func(orig []byte) bool
	best   map[string]revision
}

type revision struct {
	suffix []byte
	value  []byte
}

func (r revision) result() ([]byte, bool, error) {
	if IsTombstone(r.value) {
		return nil, false, nil
	}
	return r.value, true, nil
}

func newCollector(limit []byte, accept func(orig []byte) bool) *collector {
	return &collector{limit: limit, accept: accept, best: make(map[string]revision)}
}

func (c *collector) add(raw, value []byte) {
	if IsHeadKey(raw) || !isRevisionKey(raw) {
		return
	}
	n := len(raw) - TimestampLen
	suffix := raw[n:]
	if bytes.Compare(suffix, c.limit) > 0 {
		return
	}
	orig := raw[:n-1]
	if !c.accept(orig) {
		return
	}
	if cur, ok := c.best[string(orig)]; ok && bytes.Compare(cur.suffix, suffix) >= 0 {
		return
	}
	c.best[string(orig)] = revision{
		suffix: store.CloneBytes(suffix),
		value:  store.CloneBytes(value),
	}
}

func (c *collector) entry(key []byte) (revision, bool) {
	r, ok := c.best[string(key)]
	return r, ok
}

// deliver passes the live winners to fn in key order. Tombstoned keys are
// left out.
func (c *collector) deliver(fn store.KeyValueFunc) {
	keys := make([]string, 0, len(c.best))
	for k := range c.best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := c.best[k]
		if IsTombstone(r.value) {
			continue
		}
		fn([]byte(k), r.value)
	}
}
