package storeutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/histkv/memtable"
	"github.com/ChinmayNoob/histkv/store"
	"github.com/ChinmayNoob/histkv/store/storetest"
)

func TestDecoratorContracts(t *testing.T) {
	tests := []struct {
		name string
		wrap func(store.Store) store.Store
	}{
		{"compressing", func(st store.Store) store.Store { return NewCompressingStore(st) }},
		{"convenient", func(st store.Store) store.Store { return NewConvenientStore(st) }},
		{"transactional", func(st store.Store) store.Store { return NewTransactionalStore(st) }},
		{"profiled", func(st store.Store) store.Store { return new(Profiler).DecorateStore(st) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) store.Store {
				return tt.wrap(memtable.NewStore())
			})
		})
	}
}

func TestCompressionTransparency(t *testing.T) {
	raw := memtable.NewStore()
	c := NewCompressingStore(raw)

	big := bytes.Repeat([]byte("abcdefgh"), 4096)
	require.NoError(t, c.Put([]byte("big"), big))
	require.NoError(t, c.Put([]byte("empty"), []byte{}))

	v, ok, err := c.Get([]byte("big"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, v)

	stored, _, err := raw.Get([]byte("big"))
	require.NoError(t, err)
	assert.Less(t, len(stored), len(big)/10)

	v, ok, err = c.Get([]byte("empty"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, v)
	assert.Empty(t, v)
}

func TestCompressionCorruptData(t *testing.T) {
	raw := memtable.NewStore()
	c := NewCompressingStore(raw)
	require.NoError(t, c.Put([]byte("a"), []byte("fine")))
	require.NoError(t, raw.Put([]byte("b"), []byte("not zstd at all")))
	require.NoError(t, c.Put([]byte("c"), []byte("fine too")))

	_, _, err := c.Get([]byte("b"))
	assert.ErrorIs(t, err, store.ErrCorrupt)
	assert.ErrorIs(t, err, store.ErrStorage)

	var seen []string
	err = c.Scan(nil, nil, func(key, _ []byte) {
		seen = append(seen, string(key))
	})
	assert.ErrorIs(t, err, store.ErrCorrupt)
	assert.Equal(t, []string{"a"}, seen)

	_, err = c.GetBatch([][]byte{[]byte("a"), []byte("b")})
	assert.ErrorIs(t, err, store.ErrStorage)
}

func TestCompressingSystem(t *testing.T) {
	inner := memtable.NewSystem()
	sys := NewCompressingSystem(inner)
	storetest.RunSystem(t, sys)

	st, err := sys.OpenStore("z")
	require.NoError(t, err)
	require.NoError(t, st.Put([]byte("k"), []byte("v")))
	raw, err := inner.OpenStore("z")
	require.NoError(t, err)
	stored, _, err := raw.Get([]byte("k"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("v"), stored)
}

type sample struct {
	Name  string
	Count int
	Tags  []string
}

func TestConvenientStore(t *testing.T) {
	c := NewConvenientStore(memtable.NewStore())
	assert.Same(t, c, NewConvenientStore(c))

	require.NoError(t, c.PutString("greeting", "hello"))
	s, ok, err := c.GetString("greeting")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	in := sample{Name: "n", Count: 3, Tags: []string{"x", "y"}}
	require.NoError(t, c.PutObject("obj", in))
	var out sample
	ok, err = c.GetObject("obj", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)

	ok, err = c.GetObject("missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutString("bad", "\xff\xff"))
	_, err = c.GetObject("bad", &out)
	assert.ErrorIs(t, err, store.ErrCorrupt)

	got, err := c.GetStrings([]string{"greeting", "nope"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"greeting": []byte("hello")}, got)

	var keys []string
	require.NoError(t, c.ScanStringPrefix("g", func(key string, _ []byte) {
		keys = append(keys, key)
	}))
	assert.Equal(t, []string{"greeting"}, keys)

	require.NoError(t, c.RemoveStrings([]string{"greeting", "obj"}))
	require.NoError(t, c.RemoveString("bad"))
	n, err := KeyCount(c)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadOnlyStore(t *testing.T) {
	raw := memtable.NewStore()
	require.NoError(t, raw.Put([]byte("k"), []byte("v")))
	ro := NewReadOnlyStore(raw)

	v, ok, err := ro.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	assert.ErrorIs(t, ro.Put([]byte("k"), []byte("w")), ErrReadOnly)
	assert.ErrorIs(t, ro.PutBatch(nil), ErrReadOnly)
	assert.ErrorIs(t, ro.Remove([]byte("k")), ErrReadOnly)
	assert.ErrorIs(t, ro.RemoveBatch(nil), store.ErrStorage)

	keys, err := ListStringKeys(ro)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestPartitionedSystem(t *testing.T) {
	parent := memtable.NewSystem()
	ps := NewPartitionedSystem(parent)

	p1, err := ps.Partition("one")
	require.NoError(t, err)
	p2, err := ps.Partition("two")
	require.NoError(t, err)
	storetest.RunSystem(t, p1)

	a, err := p1.OpenStore("s")
	require.NoError(t, err)
	b, err := p2.OpenStore("s")
	require.NoError(t, err)
	require.NoError(t, a.Put([]byte("k"), []byte("1")))
	_, ok, err := b.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	raw, err := parent.OpenStore("one" + PartitionSeparator + "s")
	require.NoError(t, err)
	v, ok, err := raw.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	_, err = ps.Partition("a" + PartitionSeparator + "b")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = ps.Partition("")
	assert.ErrorIs(t, err, ErrInvalidName)
	require.NoError(t, ps.Close())
}

func TestPartitionNamesDoNotCollide(t *testing.T) {
	ps := NewPartitionedSystem(memtable.NewSystem())
	short, err := ps.Partition("a")
	require.NoError(t, err)
	long, err := ps.Partition("a$%")
	require.NoError(t, err)

	_, err = short.OpenStore("%$x")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, short.RemoveStore("%$x"), ErrInvalidName)

	st, err := long.OpenStore("x")
	require.NoError(t, err)
	require.NoError(t, st.Put([]byte("k"), []byte("v")))
	for _, name := range []string{"x", "$x", "%x", "$%$x"} {
		other, err := short.OpenStore(name)
		require.NoError(t, err, name)
		_, ok, err := other.Get([]byte("k"))
		require.NoError(t, err)
		assert.False(t, ok, name)
	}
}

func TestProfiler(t *testing.T) {
	var p Profiler
	sys := p.Decorate(memtable.NewSystem())
	st, err := sys.OpenStore("s")
	require.NoError(t, err)

	require.NoError(t, st.Put([]byte("a"), []byte("1")))
	_, _, err = st.Get([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, st.ScanKeysPrefix(nil, func(_, _ []byte) {}))
	assert.Equal(t, int64(3), p.Calls())
	assert.Positive(t, int64(p.Elapsed()))

	p.Reset()
	assert.Zero(t, p.Calls())
	assert.Zero(t, p.Elapsed())
}

func TestTransactionalStore(t *testing.T) {
	main := memtable.NewStore()
	require.NoError(t, main.Put([]byte("keep"), []byte("k")))
	require.NoError(t, main.Put([]byte("drop"), []byte("d")))
	require.NoError(t, main.Put([]byte("edit"), []byte("old")))

	tx := NewTransactionalStore(main)
	require.NoError(t, tx.Remove([]byte("drop")))
	require.NoError(t, tx.Put([]byte("edit"), []byte("new")))
	require.NoError(t, tx.Put([]byte("add"), []byte("a")))
	require.NoError(t, tx.Remove([]byte("add")))
	require.NoError(t, tx.Put([]byte("add"), []byte("again")))

	want := []string{"add=again", "edit=new", "keep=k"}
	assert.Equal(t, want, dump(t, tx))
	assert.Equal(t, []string{"drop=d", "edit=old", "keep=k"}, dump(t, main))

	vals, err := tx.GetBatch([][]byte{[]byte("drop"), []byte("edit"), []byte("keep")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{nil, []byte("new"), []byte("k")}, vals)

	require.NoError(t, tx.Commit())
	assert.Equal(t, want, dump(t, main))
	assert.Equal(t, want, dump(t, tx))

	require.NoError(t, tx.Put([]byte("zzz"), []byte("z")))
	require.NoError(t, tx.RemoveBatch([][]byte{[]byte("keep")}))
	require.NoError(t, tx.Rollback())
	assert.Equal(t, want, dump(t, tx))
}

func TestBulkHelpers(t *testing.T) {
	st := memtable.NewStore()
	for i := 0; i < 10; i++ {
		require.NoError(t, st.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}
	n, err := KeyCount(st)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	require.NoError(t, DeleteRange(st, []byte("k3"), []byte("k7")))
	keys, err := ListStringKeys(st)
	require.NoError(t, err)
	assert.Equal(t, []string{"k0", "k1", "k2", "k7", "k8", "k9"}, keys)

	sys := memtable.NewSystem()
	named, err := sys.OpenStore("n")
	require.NoError(t, err)
	require.NoError(t, named.Put([]byte("x"), []byte("y")))
	require.NoError(t, ClearNamedStore(sys, "n"))
	n, err = KeyCount(named)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, ClearStore(st))
	keys2, err := ListKeys(st)
	require.NoError(t, err)
	assert.Empty(t, keys2)
}

func dump(t *testing.T, st store.Store) []string {
	t.Helper()
	var out []string
	require.NoError(t, st.Scan(nil, nil, func(key, value []byte) {
		out = append(out, string(key)+"="+string(value))
	}))
	return out
}
