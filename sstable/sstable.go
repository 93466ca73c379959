// Package sstable stores an immutable sorted run of memtable records.
//
// Layout:
//
//	data:   repeated [u32 keyLen][key][u8 tomb][u32 valLen][val][u64 seq]
//	bloom:  encoded bloom.Filter over all keys
//	index:  repeated [u32 keyLen][key][u64 offset], every IndexEveryN-th entry
//	footer: [u64 indexOffset][u64 bloomOffset][u64 bloomLen][u32 magic][u16 version]
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ChinmayNoob/histkv/bloom"
	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/store"
)

const (
	magic      uint32 = 0x4c534d31
	version    uint16 = 3
	footerSize        = 8 + 8 + 8 + 4 + 2
	bufSize           = 64 * 1024
)

var ErrCorrupt = fmt.Errorf("%w: sstable", store.ErrCorrupt)

// BuildOptions tune the table layout.
type BuildOptions struct {
	IndexEveryN     int // sparse index density
	BloomBitsPerKey int
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{IndexEveryN: 16, BloomBitsPerKey: 10}
}

type indexEntry struct {
	key    []byte
	offset uint64
}

type Table struct {
	Path string
	ID   uint64

	index   []indexEntry
	dataEnd uint64
	bf      *bloom.Filter
}

// Open loads the sparse index and bloom filter of an existing table.
func Open(path string, id uint64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := uint64(st.Size())
	if size < footerSize {
		return nil, ErrCorrupt
	}
	var footer [footerSize]byte
	if _, err := f.ReadAt(footer[:], int64(size-footerSize)); err != nil {
		return nil, err
	}
	idxOff := binary.LittleEndian.Uint64(footer[0:8])
	bloomOff := binary.LittleEndian.Uint64(footer[8:16])
	bloomLen := binary.LittleEndian.Uint64(footer[16:24])
	if binary.LittleEndian.Uint32(footer[24:28]) != magic ||
		binary.LittleEndian.Uint16(footer[28:30]) != version {
		return nil, ErrCorrupt
	}
	if idxOff > size-footerSize || bloomOff > idxOff || bloomOff+bloomLen != idxOff {
		return nil, ErrCorrupt
	}

	t := &Table{Path: path, ID: id, dataEnd: bloomOff}

	if bloomLen > 0 {
		bb := make([]byte, bloomLen)
		if _, err := f.ReadAt(bb, int64(bloomOff)); err != nil {
			return nil, err
		}
		t.bf = &bloom.Filter{}
		if err := t.bf.UnmarshalBinary(bb); err != nil {
			return nil, ErrCorrupt
		}
	}

	r := io.NewSectionReader(f, int64(idxOff), int64(size-footerSize-idxOff))
	br := bufio.NewReaderSize(r, bufSize)
	for {
		var klenBuf [4]byte
		if _, err := io.ReadFull(br, klenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, ErrCorrupt
		}
		klen := binary.LittleEndian.Uint32(klenBuf[:])
		k := make([]byte, klen)
		if _, err := io.ReadFull(br, k); err != nil {
			return nil, ErrCorrupt
		}
		var offBuf [8]byte
		if _, err := io.ReadFull(br, offBuf[:]); err != nil {
			return nil, ErrCorrupt
		}
		t.index = append(t.index, indexEntry{key: k, offset: binary.LittleEndian.Uint64(offBuf[:])})
	}
	return t, nil
}

// Build writes every record of mt to a new table at path. The file is written
// under a .tmp name and renamed into place once synced.
func Build(path string, mt *memtable.Memtable, opts BuildOptions) error {
	if opts.IndexEveryN <= 0 {
		opts.IndexEveryN = 16
	}
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}()

	w := bufio.NewWriterSize(f, bufSize)
	bf := bloom.New(mt.Len(), opts.BloomBitsPerKey)

	var (
		index []indexEntry
		off   uint64
		i     int
		werr  error
	)
	mt.Ascend(nil, nil, func(r memtable.Record) bool {
		if i%opts.IndexEveryN == 0 {
			index = append(index, indexEntry{key: cloneBytes(r.Key), offset: off})
		}
		i++
		bf.Add(r.Key)
		n, err := writeEntry(w, r)
		if err != nil {
			werr = err
			return false
		}
		off += uint64(n)
		return true
	})
	if werr != nil {
		return werr
	}

	bloomOff := off
	bloomBytes, err := bf.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(bloomBytes); err != nil {
		return err
	}
	idxOff := bloomOff + uint64(len(bloomBytes))
	for _, e := range index {
		if err := writeIndexEntry(w, e); err != nil {
			return err
		}
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint64(footer[0:8], idxOff)
	binary.LittleEndian.PutUint64(footer[8:16], bloomOff)
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(bloomBytes)))
	binary.LittleEndian.PutUint32(footer[24:28], magic)
	binary.LittleEndian.PutUint16(footer[28:30], version)
	if _, err := w.Write(footer[:]); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func writeIndexEntry(w *bufio.Writer, e indexEntry) error {
	var klenBuf [4]byte
	binary.LittleEndian.PutUint32(klenBuf[:], uint32(len(e.key)))
	if _, err := w.Write(klenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(e.key); err != nil {
		return err
	}
	var offBuf [8]byte
	binary.LittleEndian.PutUint64(offBuf[:], e.offset)
	_, err := w.Write(offBuf[:])
	return err
}

func writeEntry(w *bufio.Writer, r memtable.Record) (int, error) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(r.Key)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(r.Key); err != nil {
		return 0, err
	}
	t := byte(0)
	if r.Tombstone {
		t = 1
	}
	if err := w.WriteByte(t); err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(r.Value)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(r.Value); err != nil {
		return 0, err
	}
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], r.Seq)
	if _, err := w.Write(seqBuf[:]); err != nil {
		return 0, err
	}
	return entrySize(r), nil
}

func entrySize(r memtable.Record) int {
	return 4 + len(r.Key) + 1 + 4 + len(r.Value) + 8
}

// MayContain checks the bloom filter. Tables without one report true.
func (t *Table) MayContain(key []byte) bool {
	if t.bf == nil {
		return true
	}
	return t.bf.MayContain(key)
}

// Get looks for key in the table.
func (t *Table) Get(key []byte) (memtable.Record, bool, error) {
	var (
		found memtable.Record
		ok    bool
	)
	err := t.Scan(key, nil, func(r memtable.Record) bool {
		if bytes.Equal(r.Key, key) {
			found, ok = r, true
		}
		return false
	})
	return found, ok, err
}

// Scan calls fn for each record with begin <= key < end until fn returns
// false. A nil end is unbounded.
func (t *Table) Scan(begin, end []byte, fn func(memtable.Record) bool) error {
	it, err := t.iterFrom(begin)
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()
	for it.Next() {
		r := it.Record()
		if bytes.Compare(r.Key, begin) < 0 {
			continue
		}
		if end != nil && bytes.Compare(r.Key, end) >= 0 {
			break
		}
		if !fn(r) {
			break
		}
	}
	return it.Err()
}

// seekOffset returns the offset of the last indexed entry with key <= target.
func (t *Table) seekOffset(target []byte) uint64 {
	lo, hi := 0, len(t.index)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(t.index[mid].key, target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0
	}
	return t.index[lo-1].offset
}

// Iter walks the data section of a table in key order.
type Iter struct {
	f    *os.File
	r    *bufio.Reader
	off  uint64
	end  uint64
	cur  memtable.Record
	err  error
	done bool
}

// NewIter opens an iterator positioned before the first record.
func NewIter(t *Table) (*Iter, error) {
	return t.iterFrom(nil)
}

func (t *Table) iterFrom(begin []byte) (*Iter, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, err
	}
	start := uint64(0)
	if begin != nil {
		start = t.seekOffset(begin)
	}
	sr := io.NewSectionReader(f, int64(start), int64(t.dataEnd-start))
	return &Iter{
		f:   f,
		r:   bufio.NewReaderSize(sr, bufSize),
		off: start,
		end: t.dataEnd,
	}, nil
}

func (it *Iter) Next() bool {
	if it.done || it.err != nil || it.off >= it.end {
		return false
	}
	rec, err := readEntry(it.r)
	if err != nil {
		it.err = err
		return false
	}
	it.off += uint64(entrySize(rec))
	it.cur = rec
	return true
}

func (it *Iter) Record() memtable.Record {
	return it.cur
}

func (it *Iter) Err() error {
	return it.err
}

func (it *Iter) Close() error {
	it.done = true
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}

func readEntry(r *bufio.Reader) (memtable.Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return memtable.Record{}, ErrCorrupt
	}
	k := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, k); err != nil {
		return memtable.Record{}, ErrCorrupt
	}
	tomb, err := r.ReadByte()
	if err != nil {
		return memtable.Record{}, ErrCorrupt
	}
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return memtable.Record{}, ErrCorrupt
	}
	v := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, v); err != nil {
		return memtable.Record{}, ErrCorrupt
	}
	var seqBuf [8]byte
	if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
		return memtable.Record{}, ErrCorrupt
	}
	return memtable.Record{
		Key:       k,
		Value:     v,
		Tombstone: tomb == 1,
		Seq:       binary.LittleEndian.Uint64(seqBuf[:]),
	}, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func FormatFilename(id uint64) string {
	return fmt.Sprintf("sstable-%06d.sst", id)
}
