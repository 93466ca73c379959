// Package memtable holds records ordered by key.
//
// Memtable is the write buffer of the LSM engine in package db and the
// building block of the in-memory store (Store, System).
package memtable

import (
	"bytes"

	"github.com/google/btree"
)

const degree = 32

type Memtable struct {
	tree  *btree.BTreeG[Record]
	bytes int
}

func byKey(a, b Record) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

func New() *Memtable {
	return &Memtable{
		tree: btree.NewG(degree, byKey),
	}
}

// Apply stores r if it is at least as new as the current record for its key.
func (m *Memtable) Apply(r Record) {
	curr, ok := m.tree.Get(Record{Key: r.Key})
	if ok && r.Seq < curr.Seq {
		return
	}
	m.replace(r.clone(), curr, ok)
}

// Set stores key/value unconditionally, ignoring sequence numbers.
func (m *Memtable) Set(key, value []byte) {
	r := Record{Key: cloneBytes(key), Value: cloneBytes(value)}
	if r.Value == nil {
		r.Value = []byte{}
	}
	curr, ok := m.tree.Get(Record{Key: key})
	m.replace(r, curr, ok)
}

func (m *Memtable) replace(r, prev Record, hadPrev bool) {
	if hadPrev {
		m.bytes -= prev.Size()
	}
	m.tree.ReplaceOrInsert(r)
	m.bytes += r.Size()
}

// Delete drops the record for key entirely (no tombstone).
func (m *Memtable) Delete(key []byte) bool {
	prev, ok := m.tree.Delete(Record{Key: key})
	if ok {
		m.bytes -= prev.Size()
	}
	return ok
}

// Get returns a copy of the latest record for key.
func (m *Memtable) Get(key []byte) (Record, bool) {
	r, ok := m.tree.Get(Record{Key: key})
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

func (m *Memtable) Len() int {
	return m.tree.Len()
}

// Bytes approximates the memory held by all records.
func (m *Memtable) Bytes() int {
	return m.bytes
}

// Ascend calls fn for every record with begin <= key < end in key order until
// fn returns false. A nil end is unbounded. fn must not modify the record.
func (m *Memtable) Ascend(begin, end []byte, fn func(Record) bool) {
	pivot := Record{Key: begin}
	if end == nil {
		m.tree.AscendGreaterOrEqual(pivot, fn)
		return
	}
	m.tree.AscendRange(pivot, Record{Key: end}, fn)
}

// Clear drops all records.
func (m *Memtable) Clear() {
	m.tree.Clear(false)
	m.bytes = 0
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
