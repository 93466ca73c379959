// Package db is a persistent LSM ordered byte store: a write-ahead log and a
// memtable in front of immutable SSTables.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ChinmayNoob/histkv/compaction"
	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/sstable"
	"github.com/ChinmayNoob/histkv/store"
	"github.com/ChinmayNoob/histkv/wal"
)

var (
	ErrClosed   = store.ErrClosed
	ErrEmptyKey = fmt.Errorf("%w: empty key", store.ErrStorage)
)

type DB struct {
	mu     sync.Mutex
	closed bool

	mem *memtable.Memtable
	seq uint64

	opts    Options
	log     *zap.Logger
	walPath string
	w       *wal.WAL

	sstDir   string
	nextSST  uint64
	sstables []*sstable.Table // sorted by ID ascending
}

var _ store.Store = (*DB)(nil)

func Open(opts Options) (*DB, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sstDir := filepath.Join(opts.Dir, "sstables")
	if err := os.MkdirAll(sstDir, 0o755); err != nil {
		return nil, store.Wrap("open", err)
	}
	if err := cleanupTmpFiles(sstDir); err != nil {
		return nil, store.Wrap("open", err)
	}

	d := &DB{
		opts:    opts,
		log:     log.With(zap.String("dir", opts.Dir)),
		mem:     memtable.New(),
		walPath: filepath.Join(opts.Dir, "wal.log"),
		sstDir:  sstDir,
	}

	maxSeq, valid, err := wal.Replay(d.walPath, func(r wal.Record) error {
		switch r.Op {
		case wal.OpPut:
			d.mem.Apply(memtable.Record{Key: r.Key, Value: r.Value, Seq: r.Seq})
		case wal.OpDelete:
			d.mem.Apply(memtable.Record{Key: r.Key, Tombstone: true, Seq: r.Seq})
		default:
			return wal.ErrCorrupt
		}
		return nil
	})
	if err != nil {
		return nil, store.Wrap("replay wal", err)
	}
	cut, err := wal.Repair(d.walPath, valid)
	if err != nil {
		return nil, store.Wrap("repair wal", err)
	}
	if cut {
		d.log.Warn("dropped torn wal tail", zap.Int64("size", valid))
	}

	tables, nextID, err := loadSSTables(d.sstDir)
	if err != nil {
		return nil, store.Wrap("load sstables", err)
	}
	d.sstables = tables
	d.nextSST = nextID
	d.seq = maxSeq + 1
	for _, t := range tables {
		// Sequence numbers must keep growing across restarts even when the wal
		// was emptied by a flush.
		if err := t.Scan(nil, nil, func(r memtable.Record) bool {
			if r.Seq >= d.seq {
				d.seq = r.Seq + 1
			}
			return true
		}); err != nil {
			return nil, store.Wrap("load sstables", err)
		}
	}

	ww, err := wal.Open(d.walPath, opts.SyncOnWrite)
	if err != nil {
		return nil, store.Wrap("open wal", err)
	}
	d.w = ww
	d.log.Debug("opened",
		zap.Int("sstables", len(tables)),
		zap.Int("replayed", d.mem.Len()),
		zap.Uint64("seq", d.seq))
	return d, nil
}

func (d *DB) Put(key, value []byte) error {
	return d.write([]wal.Record{{Op: wal.OpPut, Key: key, Value: value}})
}

func (d *DB) PutBatch(pairs []store.Pair) error {
	recs := make([]wal.Record, len(pairs))
	for i, p := range pairs {
		recs[i] = wal.Record{Op: wal.OpPut, Key: p.Key, Value: p.Value}
	}
	return d.write(recs)
}

func (d *DB) Remove(key []byte) error {
	return d.write([]wal.Record{{Op: wal.OpDelete, Key: key}})
}

func (d *DB) RemoveBatch(keys [][]byte) error {
	recs := make([]wal.Record, len(keys))
	for i, k := range keys {
		recs[i] = wal.Record{Op: wal.OpDelete, Key: k}
	}
	return d.write(recs)
}

// write logs recs as one wal frame, then applies them to the memtable.
func (d *DB) write(recs []wal.Record) error {
	if len(recs) == 0 {
		return nil
	}
	for i := range recs {
		if len(recs[i].Key) == 0 {
			return ErrEmptyKey
		}
		if recs[i].Op == wal.OpPut && recs[i].Value == nil {
			recs[i].Value = []byte{}
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for i := range recs {
		recs[i].Seq = d.seq + uint64(i)
	}
	var err error
	if len(recs) == 1 {
		err = d.w.Append(recs[0])
	} else {
		err = d.w.AppendBatch(recs)
	}
	if err != nil {
		return store.Wrap("append wal", err)
	}
	d.seq += uint64(len(recs))
	for _, r := range recs {
		d.mem.Apply(memtable.Record{
			Key:       r.Key,
			Value:     r.Value,
			Tombstone: r.Op == wal.OpDelete,
			Seq:       r.Seq,
		})
	}
	// The records are durable in the wal, so a failed flush does not fail the
	// write. The memtable is kept and the next write tries again.
	if err := d.maybeFlushLocked(); err != nil {
		d.log.Warn("flush failed", zap.Error(err))
	}
	return nil
}

// Get returns (value, ok, err).
//
// ok=false means key not found (or deleted by tombstone).
func (d *DB) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, ErrEmptyKey
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, false, ErrClosed
	}
	return d.getLocked(key)
}

func (d *DB) GetBatch(keys [][]byte) ([][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if len(k) == 0 {
			return nil, ErrEmptyKey
		}
		v, ok, err := d.getLocked(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (d *DB) getLocked(key []byte) ([]byte, bool, error) {
	if r, ok := d.mem.Get(key); ok {
		if r.Tombstone {
			return nil, false, nil
		}
		return r.Value, true, nil
	}

	// SSTables: newest to oldest.
	for i := len(d.sstables) - 1; i >= 0; i-- {
		tbl := d.sstables[i]
		if !tbl.MayContain(key) {
			d.log.Debug("bloom skip", zap.Uint64("sstable", tbl.ID))
			continue
		}
		rec, ok, err := tbl.Get(key)
		if err != nil {
			return nil, false, store.Wrap("get", err)
		}
		if !ok {
			d.log.Debug("bloom false positive", zap.Uint64("sstable", tbl.ID))
			continue
		}
		if rec.Tombstone {
			return nil, false, nil
		}
		return rec.Value, true, nil
	}
	return nil, false, nil
}

func (d *DB) Scan(begin, end []byte, fn store.KeyValueFunc) error {
	return d.scan(begin, end, true, fn)
}

func (d *DB) ScanPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return d.scan(prefix, store.PrefixEnd(prefix), true, fn)
}

func (d *DB) ScanPrefixes(prefixes [][]byte, fn store.KeyValueFunc) error {
	return store.ScanPrefixesOnce(prefixes, d.ScanPrefix, fn)
}

func (d *DB) ScanKeys(begin, end []byte, fn store.KeyValueFunc) error {
	return d.scan(begin, end, false, fn)
}

func (d *DB) ScanKeysPrefix(prefix []byte, fn store.KeyValueFunc) error {
	return d.scan(prefix, store.PrefixEnd(prefix), false, fn)
}

// scan merges the range from every table and the memtable, newest record
// wins, and delivers the live records once the lock is released.
func (d *DB) scan(begin, end []byte, withValues bool, fn store.KeyValueFunc) error {
	merged, err := d.collect(begin, end)
	if err != nil {
		return err
	}
	merged.Ascend(nil, nil, func(r memtable.Record) bool {
		if r.Tombstone {
			return true
		}
		if withValues {
			fn(r.Key, r.Value)
		} else {
			fn(r.Key, nil)
		}
		return true
	})
	return nil
}

func (d *DB) collect(begin, end []byte) (*memtable.Memtable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	merged := memtable.New()
	apply := func(r memtable.Record) bool {
		merged.Apply(r)
		return true
	}
	for _, tbl := range d.sstables {
		if err := tbl.Scan(begin, end, apply); err != nil {
			return nil, store.Wrap("scan", err)
		}
	}
	d.mem.Ascend(begin, end, apply)
	return merged, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return store.Wrap("close", d.w.Close())
}

func (d *DB) buildOptions() sstable.BuildOptions {
	o := sstable.DefaultBuildOptions()
	if d.opts.IndexEveryN > 0 {
		o.IndexEveryN = d.opts.IndexEveryN
	}
	if d.opts.BloomBitsPerKey > 0 {
		o.BloomBitsPerKey = d.opts.BloomBitsPerKey
	}
	return o
}

func (d *DB) maybeFlushLocked() error {
	if d.opts.MemtableMaxBytes <= 0 || d.mem.Bytes() < d.opts.MemtableMaxBytes {
		return nil
	}
	return d.flushLocked()
}

// flushLocked writes the memtable to a new table. The memtable and the wal are
// only replaced once the table is open, so a failed flush leaves both intact.
func (d *DB) flushLocked() error {
	id := d.nextSST
	if id == 0 {
		id = 1
	}
	sstPath := filepath.Join(d.sstDir, sstable.FormatFilename(id))
	d.log.Debug("flushing memtable", zap.Int("keys", d.mem.Len()), zap.Uint64("sstable", id))
	if err := sstable.Build(sstPath, d.mem, d.buildOptions()); err != nil {
		return err
	}
	tbl, err := sstable.Open(sstPath, id)
	if err != nil {
		_ = os.Remove(sstPath)
		return err
	}
	d.nextSST = id + 1
	d.sstables = append(d.sstables, tbl)
	sort.Slice(d.sstables, func(i, j int) bool { return d.sstables[i].ID < d.sstables[j].ID })
	d.mem = memtable.New()

	// A crash before the reset replays records the new table already holds.
	if err := d.resetWALLocked(); err != nil {
		return err
	}

	if d.opts.MaxSSTables > 0 && len(d.sstables) > d.opts.MaxSSTables {
		return d.compactLocked()
	}
	return nil
}

func (d *DB) resetWALLocked() error {
	if err := d.w.Close(); err != nil {
		return err
	}
	if err := os.Truncate(d.walPath, 0); err != nil {
		return err
	}
	w, err := wal.Open(d.walPath, d.opts.SyncOnWrite)
	if err != nil {
		return err
	}
	d.w = w
	return nil
}

func (d *DB) compactLocked() error {
	if len(d.sstables) <= 1 {
		return nil
	}
	outID := d.nextSST
	d.nextSST = outID + 1
	d.log.Debug("compacting", zap.Int("sstables", len(d.sstables)), zap.Uint64("output", outID))

	// All tables take part, so tombstones have nothing left to shadow.
	newTbl, err := compaction.Run(d.sstDir, d.sstables, outID, d.buildOptions(), true)
	if err != nil {
		return err
	}
	if newTbl == nil {
		return nil
	}
	d.sstables = []*sstable.Table{newTbl}
	return nil
}

// Compact merges all tables into one.
func (d *DB) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return store.Wrap("compact", d.compactLocked())
}

// Flush writes the memtable to a new table regardless of its size.
func (d *DB) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.mem.Len() == 0 {
		return nil
	}
	return store.Wrap("flush", d.flushLocked())
}

// SSTableCount reports the number of live tables.
func (d *DB) SSTableCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sstables)
}

func loadSSTables(dir string) ([]*sstable.Table, uint64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, 1, err
	}
	type pair struct {
		id   uint64
		path string
	}
	var ps []pair
	var maxID uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "sstable-") || !strings.HasSuffix(name, ".sst") {
			continue
		}
		id64, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "sstable-"), ".sst"), 10, 64)
		if err != nil {
			continue
		}
		if id64 > maxID {
			maxID = id64
		}
		ps = append(ps, pair{id: id64, path: filepath.Join(dir, name)})
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].id < ps[j].id })
	out := make([]*sstable.Table, 0, len(ps))
	for _, p := range ps {
		t, err := sstable.Open(p.path, p.id)
		if err != nil {
			return nil, 1, err
		}
		out = append(out, t)
	}
	return out, maxID + 1, nil
}

func cleanupTmpFiles(dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tmp") {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
