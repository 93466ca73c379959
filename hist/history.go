package hist

import (
	"bytes"

	"github.com/ChinmayNoob/histkv/store"
)

// Revision is one entry of the history of a key. Value is nil for deletions.
type Revision struct {
	Timestamp int64
	Value     []byte
}

// Deleted reports whether the revision removed the key.
func (r Revision) Deleted() bool {
	return r.Value == nil
}

// QueryHistory lists the revisions of key with start <= timestamp < end in
// ascending timestamp order.
func QueryHistory(st store.Store, key []byte, start, end int64) ([]Revision, error) {
	var out []Revision
	c := store.Catch(func(raw, value []byte) error {
		k, err := ParseKey(raw)
		if err != nil {
			return err
		}
		// Longer keys that embed the separator can sort inside the range.
		if k.Kind != KindRevision || !bytes.Equal(k.Key, key) {
			return nil
		}
		r := Revision{Timestamp: k.Timestamp}
		if !IsTombstone(value) {
			r.Value = store.CloneBytes(value)
		}
		out = append(out, r)
		return nil
	})
	err := st.Scan(RevisionKey(key, TimestampSuffix(start)), RevisionKey(key, TimestampSuffix(end)), c.Callback)
	return out, c.Finish(err)
}
