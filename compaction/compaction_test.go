package compaction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/sstable"
)

func table(t *testing.T, dir string, id uint64, recs ...memtable.Record) *sstable.Table {
	t.Helper()
	mt := memtable.New()
	for _, r := range recs {
		mt.Apply(r)
	}
	path := filepath.Join(dir, sstable.FormatFilename(id))
	require.NoError(t, sstable.Build(path, mt, sstable.DefaultBuildOptions()))
	tbl, err := sstable.Open(path, id)
	require.NoError(t, err)
	return tbl
}

func put(key, value string, seq uint64) memtable.Record {
	return memtable.Record{Key: []byte(key), Value: []byte(value), Seq: seq}
}

func del(key string, seq uint64) memtable.Record {
	return memtable.Record{Key: []byte(key), Tombstone: true, Seq: seq}
}

func contents(t *testing.T, tbl *sstable.Table) map[string]memtable.Record {
	t.Helper()
	out := make(map[string]memtable.Record)
	require.NoError(t, tbl.Scan(nil, nil, func(r memtable.Record) bool {
		out[string(r.Key)] = r
		return true
	}))
	return out
}

func TestRunNewestWins(t *testing.T) {
	for _, drop := range []bool{false, true} {
		dir := t.TempDir()
		older := table(t, dir, 1, put("a", "a1", 1), put("b", "b1", 2), put("c", "c1", 3))
		newer := table(t, dir, 2, put("a", "a2", 10), del("b", 11), put("d", "d2", 12))

		out, err := Run(dir, []*sstable.Table{older, newer}, 3, sstable.DefaultBuildOptions(), drop)
		require.NoError(t, err)
		require.NotNil(t, out)

		got := contents(t, out)
		assert.Equal(t, "a2", string(got["a"].Value))
		assert.Equal(t, "c1", string(got["c"].Value))
		assert.Equal(t, "d2", string(got["d"].Value))
		b, ok := got["b"]
		if drop {
			assert.False(t, ok)
		} else {
			require.True(t, ok)
			assert.True(t, b.Tombstone)
			assert.Equal(t, uint64(11), b.Seq)
		}

		_, err = os.Stat(older.Path)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(newer.Path)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestRunOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	// Inputs passed newest first still resolve by sequence number.
	newer := table(t, dir, 2, put("k", "new", 9))
	older := table(t, dir, 1, put("k", "old", 3))
	out, err := Run(dir, []*sstable.Table{newer, older}, 3, sstable.DefaultBuildOptions(), false)
	require.NoError(t, err)
	assert.Equal(t, "new", string(contents(t, out)["k"].Value))
}

func TestRunNoInputs(t *testing.T) {
	out, err := Run(t.TempDir(), nil, 1, sstable.DefaultBuildOptions(), true)
	require.NoError(t, err)
	assert.Nil(t, out)
}
