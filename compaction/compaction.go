// Package compaction merges SSTables of the LSM engine.
package compaction

import (
	"bytes"
	"container/heap"
	"os"
	"path/filepath"

	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/sstable"
)

// Run does a k-way merge of inputs by key, keeping the highest Seq per key,
// writes the result as table outputID and deletes the inputs.
//
// Tombstones are kept unless dropTombstones is set; that is only safe when
// inputs hold every table of the store, since nothing older can remain for a
// tombstone to shadow.
func Run(sstDir string, inputs []*sstable.Table, outputID uint64, opts sstable.BuildOptions, dropTombstones bool) (*sstable.Table, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	iters := make([]*sstable.Iter, 0, len(inputs))
	defer func() {
		for _, it := range iters {
			_ = it.Close()
		}
	}()
	h := &mergeHeap{}
	for _, t := range inputs {
		it, err := sstable.NewIter(t)
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
		if it.Next() {
			heap.Push(h, it)
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
	}

	out := memtable.New()
	var (
		best memtable.Record
		have bool
	)
	flush := func() {
		if have && !(dropTombstones && best.Tombstone) {
			out.Apply(best)
		}
		have = false
	}

	for h.Len() > 0 {
		it := heap.Pop(h).(*sstable.Iter)
		r := it.Record()
		switch {
		case !have || !bytes.Equal(r.Key, best.Key):
			flush()
			best, have = r, true
		case r.Seq > best.Seq:
			best = r
		}
		if it.Next() {
			heap.Push(h, it)
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
	}
	flush()

	outPath := filepath.Join(sstDir, sstable.FormatFilename(outputID))
	if err := sstable.Build(outPath, out, opts); err != nil {
		return nil, err
	}
	tbl, err := sstable.Open(outPath, outputID)
	if err != nil {
		return nil, err
	}
	for _, t := range inputs {
		_ = os.Remove(t.Path)
	}
	return tbl, nil
}

type mergeHeap []*sstable.Iter

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return bytes.Compare(h[i].Record().Key, h[j].Record().Key) < 0
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*sstable.Iter)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
