package hist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/store"
	"github.com/ChinmayNoob/histkv/storeutil"
)

func writer(t *testing.T, st store.Store, ts int64) *HeadWriteView {
	t.Helper()
	w, err := NewHeadWriteView(st, ts)
	require.NoError(t, err)
	return w
}

func reader(t *testing.T, st store.Store, ts int64) *TimestampReadView {
	t.Helper()
	r, err := NewTimestampReadView(st, ts)
	require.NoError(t, err)
	return r
}

func requireValue(t *testing.T, s store.Store, key, want string) {
	t.Helper()
	v, ok, err := s.Get([]byte(key))
	require.NoError(t, err)
	require.True(t, ok, "key %q absent", key)
	assert.Equal(t, want, string(v))
}

func requireAbsent(t *testing.T, s store.Store, key string) {
	t.Helper()
	v, ok, err := s.Get([]byte(key))
	require.NoError(t, err)
	assert.False(t, ok, "key %q = %q", key, v)
}

type kv struct{ key, value string }

func scanAll(t *testing.T, s store.Store) []kv {
	t.Helper()
	var out []kv
	require.NoError(t, s.Scan(nil, nil, func(key, value []byte) {
		out = append(out, kv{string(key), string(value)})
	}))
	return out
}

func rawKeys(t *testing.T, st store.Store) (all, heads int) {
	t.Helper()
	require.NoError(t, st.ScanKeys(nil, nil, func(key, _ []byte) {
		all++
		if IsHeadKey(key) {
			heads++
		}
	}))
	return all, heads
}

func TestRoundTrip(t *testing.T) {
	st := memtable.NewStore()
	require.NoError(t, writer(t, st, 100).Put([]byte("K"), []byte("v1")))

	requireValue(t, NewHeadReadView(st), "K", "v1")
	requireValue(t, reader(t, st, 100), "K", "v1")
	requireAbsent(t, reader(t, st, 99), "K")
}

func TestTombstoneVisibility(t *testing.T) {
	st := memtable.NewStore()
	require.NoError(t, writer(t, st, 100).Put([]byte("K"), []byte("v1")))
	require.NoError(t, writer(t, st, 200).Remove([]byte("K")))

	requireAbsent(t, NewHeadReadView(st), "K")
	requireAbsent(t, reader(t, st, 200), "K")
	requireAbsent(t, reader(t, st, 5000), "K")
	requireValue(t, reader(t, st, 100), "K", "v1")
	requireValue(t, reader(t, st, 199), "K", "v1")
}

func TestHeadAndTimestampAgreeAfterWrite(t *testing.T) {
	st := memtable.NewStore()
	w := writer(t, st, 300)
	require.NoError(t, w.PutBatch([]store.Pair{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte{}},
	}))
	require.NoError(t, w.RemoveBatch([][]byte{[]byte("b")}))

	assert.Equal(t, scanAll(t, NewHeadReadView(st)), scanAll(t, reader(t, st, 300)))
	assert.Equal(t, []kv{{"a", "1"}, {"c", ""}}, scanAll(t, w))
}

func TestMonotonicHistory(t *testing.T) {
	// Revisions spread over years so that reads need each search window and
	// the final full scan.
	const day = int64(24 * 60 * 60 * 1000)
	base := int64(1_600_000_000_000)
	times := []int64{base, base + day/2, base + 10*day, base + 200*day, base + 900*day}

	st := memtable.NewStore()
	for i, ts := range times {
		require.NoError(t, writer(t, st, ts).Put([]byte("K"), []byte{byte('a' + i)}))
		// Noise on neighbouring keys.
		require.NoError(t, writer(t, st, ts).Put([]byte("J"), []byte("j")))
		require.NoError(t, writer(t, st, ts).Put([]byte("K2"), []byte("k2")))
	}

	requireAbsent(t, reader(t, st, base-1), "K")
	for i, ts := range times {
		want := string([]byte{byte('a' + i)})
		requireValue(t, reader(t, st, ts), "K", want)
		next := base + 1000*day
		if i+1 < len(times) {
			next = times[i+1]
		}
		requireValue(t, reader(t, st, next-1), "K", want)
	}
}

func TestEmptyValueIsNotDeletion(t *testing.T) {
	st := memtable.NewStore()
	require.NoError(t, writer(t, st, 10).Put([]byte("e"), []byte{}))
	requireValue(t, reader(t, st, 10), "e", "")
	requireValue(t, NewHeadReadView(st), "e", "")
}

func TestWriteValidation(t *testing.T) {
	st := memtable.NewStore()
	w := writer(t, st, 10)

	assert.ErrorIs(t, w.Put([]byte(HeadPrefix+"x"), []byte("v")), ErrReservedKey)
	assert.ErrorIs(t, w.Put([]byte{'x', Separator}, []byte("v")), ErrReservedKey)
	assert.ErrorIs(t, w.Remove([]byte(HeadPrefix)), ErrReservedKey)
	err := w.Put([]byte("x"), Tombstone())
	assert.ErrorIs(t, err, ErrReservedValue)
	assert.ErrorIs(t, err, store.ErrStorage)

	all, _ := rawKeys(t, st)
	assert.Zero(t, all)

	_, err = NewHeadWriteView(st, 0)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	_, err = NewTimestampReadView(st, -5)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestReadViewsRejectWrites(t *testing.T) {
	st := memtable.NewStore()
	views := map[string]store.Store{
		"head":      NewHeadReadView(st),
		"timestamp": reader(t, st, 1),
		"rollback":  NewRollbackView(st, DefaultRollbackOptions()),
	}
	for name, v := range views {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, v.Put([]byte("k"), []byte("v")), ErrReadOnly)
			assert.ErrorIs(t, v.PutBatch(nil), ErrReadOnly)
			assert.ErrorIs(t, v.Remove([]byte("k")), ErrReadOnly)
			assert.ErrorIs(t, v.RemoveBatch(nil), ErrReadOnly)
			assert.ErrorIs(t, v.Put([]byte("k"), nil), store.ErrStorage)
		})
	}
}

func TestTimestampScans(t *testing.T) {
	st := memtable.NewStore()
	w := writer(t, st, 100)
	for _, k := range []string{"a", "ab", "abc", "b", "ba", "c"} {
		require.NoError(t, w.Put([]byte(k), []byte("old-"+k)))
	}
	w = writer(t, st, 200)
	require.NoError(t, w.Put([]byte("ab"), []byte("new-ab")))
	require.NoError(t, w.Remove([]byte("b")))
	require.NoError(t, w.Put([]byte("d"), []byte("new-d")))

	r := reader(t, st, 150)
	var got []kv
	require.NoError(t, r.Scan([]byte("ab"), []byte("ba"), func(key, value []byte) {
		got = append(got, kv{string(key), string(value)})
	}))
	assert.Equal(t, []kv{{"ab", "old-ab"}, {"abc", "old-abc"}, {"b", "old-b"}}, got)

	r = reader(t, st, 250)
	got = nil
	require.NoError(t, r.Scan([]byte("ab"), []byte("ba"), func(key, value []byte) {
		got = append(got, kv{string(key), string(value)})
	}))
	assert.Equal(t, []kv{{"ab", "new-ab"}, {"abc", "old-abc"}}, got)

	got = nil
	require.NoError(t, r.ScanPrefixes([][]byte{[]byte("b"), []byte("ab")}, func(key, value []byte) {
		got = append(got, kv{string(key), string(value)})
	}))
	assert.Equal(t, []kv{{"ab", "new-ab"}, {"abc", "old-abc"}, {"ba", "old-ba"}}, got)

	var keys []string
	require.NoError(t, r.ScanKeysPrefix([]byte("a"), func(key, value []byte) {
		assert.Nil(t, value)
		keys = append(keys, string(key))
	}))
	assert.Equal(t, []string{"a", "ab", "abc"}, keys)

	assert.Equal(t, []kv{
		{"a", "old-a"}, {"ab", "new-ab"}, {"abc", "old-abc"}, {"ba", "old-ba"}, {"c", "old-c"}, {"d", "new-d"},
	}, scanAll(t, r))

	vals, err := r.GetBatch([][]byte{[]byte("b"), []byte("ab"), []byte("zz")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{nil, []byte("new-ab"), nil}, vals)
}

func TestScanEndIsPrefixOfRevisionKeys(t *testing.T) {
	st := memtable.NewStore()
	require.NoError(t, writer(t, st, 100).Put([]byte("a"), []byte("1")))
	require.NoError(t, writer(t, st, 100).Put([]byte("ab"), []byte("2")))

	var got []string
	require.NoError(t, reader(t, st, 100).Scan([]byte("a"), []byte("ab"), func(key, _ []byte) {
		got = append(got, string(key))
	}))
	assert.Equal(t, []string{"a"}, got)

	// "a" is a proper prefix of begin and must stay out.
	got = nil
	require.NoError(t, reader(t, st, 100).Scan([]byte("aa"), nil, func(key, _ []byte) {
		got = append(got, string(key))
	}))
	assert.Equal(t, []string{"ab"}, got)
}

func TestHeadReadViewScans(t *testing.T) {
	st := memtable.NewStore()
	w := writer(t, st, 100)
	for _, k := range []string{"x1", "x2", "y1"} {
		require.NoError(t, w.Put([]byte(k), []byte("v"+k)))
	}
	h := NewHeadReadView(st)

	var keys []string
	require.NoError(t, h.ScanKeysPrefix([]byte("x"), func(key, _ []byte) {
		keys = append(keys, string(key))
	}))
	assert.Equal(t, []string{"x1", "x2"}, keys)

	keys = nil
	require.NoError(t, h.ScanKeys([]byte("x2"), nil, func(key, _ []byte) {
		keys = append(keys, string(key))
	}))
	assert.Equal(t, []string{"x2", "y1"}, keys)

	vals, err := h.GetBatch([][]byte{[]byte("y1"), []byte("z")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("vy1"), nil}, vals)
}

func TestModeOpen(t *testing.T) {
	st := memtable.NewStore()

	v, err := WriteTimestamp(10).Open(st)
	require.NoError(t, err)
	require.IsType(t, &HeadWriteView{}, v)
	require.NoError(t, v.Put([]byte("k"), []byte("v")))

	v, err = ReadHead().Open(st)
	require.NoError(t, err)
	requireValue(t, v, "k", "v")

	v, err = ReadTimestamp(9).Open(st)
	require.NoError(t, err)
	requireAbsent(t, v, "k")

	_, err = ReadTimestamp(0).Open(st)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	_, err = WriteTimestamp(-1).Open(st)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	assert.Equal(t, "head", ReadHead().String())
	assert.Equal(t, "read@9", ReadTimestamp(9).String())
	assert.Equal(t, "write@10", WriteTimestamp(10).String())
}

func TestQueryHistory(t *testing.T) {
	st := memtable.NewStore()
	require.NoError(t, writer(t, st, 10).Put([]byte("k"), []byte("a")))
	require.NoError(t, writer(t, st, 20).Remove([]byte("k")))
	require.NoError(t, writer(t, st, 30).Put([]byte("k"), []byte("b")))
	// A key that embeds a revision key of "k" sorts between its revisions.
	noise := append(RevisionKey([]byte("k"), TimestampSuffix(16)), 'x')
	require.NoError(t, writer(t, st, 20).Put(noise, []byte("noise")))

	revs, err := QueryHistory(st, []byte("k"), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, []Revision{
		{Timestamp: 10, Value: []byte("a")},
		{Timestamp: 20},
		{Timestamp: 30, Value: []byte("b")},
	}, revs)
	assert.True(t, revs[1].Deleted())

	revs, err = QueryHistory(st, []byte("k"), 11, 30)
	require.NoError(t, err)
	assert.Equal(t, []Revision{{Timestamp: 20}}, revs)
}

func TestGetStopsAtFirstWindowWithRevision(t *testing.T) {
	raw := memtable.NewStore()
	now := int64(1000 * day)
	require.NoError(t, writer(t, raw, now-10).Put([]byte("recent"), []byte("r")))
	require.NoError(t, writer(t, raw, now-10*day).Put([]byte("mid"), []byte("m")))
	require.NoError(t, writer(t, raw, 10*day).Put([]byte("old"), []byte("o")))

	var prof storeutil.Profiler
	r := reader(t, prof.DecorateStore(raw), now)
	tests := []struct {
		key   string
		want  string
		scans int64
	}{
		{"recent", "r", 1},
		{"mid", "m", 2},
		{"old", "o", 4},
		{"missing", "", 4},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			prof.Reset()
			if tt.want == "" {
				requireAbsent(t, r, tt.key)
			} else {
				requireValue(t, r, tt.key, tt.want)
			}
			assert.Equal(t, tt.scans, prof.Calls())
		})
	}

	// Windows reaching back past zero are skipped.
	prof.Reset()
	requireAbsent(t, reader(t, prof.DecorateStore(raw), 100), "recent")
	assert.Equal(t, int64(1), prof.Calls())
}
