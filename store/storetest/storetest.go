// Package storetest checks a store.Store implementation against the ordered
// byte store contract.
package storetest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/histkv/store"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

// Run executes every contract test against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"GetPutRemove", testGetPutRemove},
		{"EmptyValue", testEmptyValue},
		{"Batches", testBatches},
		{"ScanRange", testScanRange},
		{"ScanUnsignedOrder", testScanUnsignedOrder},
		{"ScanPrefix", testScanPrefix},
		{"ScanPrefixesOverlap", testScanPrefixesOverlap},
		{"ScanKeys", testScanKeys},
		{"CallbackReentry", testCallbackReentry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// RunSystem checks that stores of a system are independent and that
// RemoveStore empties only the named store.
func RunSystem(t *testing.T, sys store.StorageSystem) {
	a, err := sys.OpenStore("alpha")
	require.NoError(t, err)
	b, err := sys.OpenStore("beta")
	require.NoError(t, err)
	ab, err := sys.OpenStore("alphabet")
	require.NoError(t, err)

	require.NoError(t, a.Put([]byte("k"), []byte("a")))
	require.NoError(t, b.Put([]byte("k"), []byte("b")))
	require.NoError(t, ab.Put([]byte("k"), []byte("ab")))

	assertValue(t, a, "k", "a")
	assertValue(t, b, "k", "b")
	assertValue(t, ab, "k", "ab")
	assert.Equal(t, []string{"k"}, scanAll(t, a))

	again, err := sys.OpenStore("alpha")
	require.NoError(t, err)
	assertValue(t, again, "k", "a")

	require.NoError(t, sys.RemoveStore("alpha"))
	assert.Empty(t, scanAll(t, a))
	assertValue(t, b, "k", "b")
	assertValue(t, ab, "k", "ab")
}

func testGetPutRemove(t *testing.T, s store.Store) {
	_, ok, err := s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	assertValue(t, s, "a", "1")

	require.NoError(t, s.Put([]byte("a"), []byte("2")))
	assertValue(t, s, "a", "2")

	require.NoError(t, s.Remove([]byte("a")))
	_, ok, err = s.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove([]byte("never-written")))
}

func testEmptyValue(t *testing.T, s store.Store) {
	require.NoError(t, s.Put([]byte("e"), []byte{}))
	v, ok, err := s.Get([]byte("e"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, v)

	vals, err := s.GetBatch([][]byte{[]byte("e"), []byte("x")})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.NotNil(t, vals[0])
	assert.Empty(t, vals[0])
	assert.Nil(t, vals[1])
}

func testBatches(t *testing.T, s store.Store) {
	require.NoError(t, s.PutBatch([]store.Pair{
		{Key: []byte("b1"), Value: []byte("v1")},
		{Key: []byte("b2"), Value: []byte("v2")},
		{Key: []byte("b3"), Value: []byte("v3")},
	}))
	vals, err := s.GetBatch([][]byte{[]byte("b3"), []byte("nope"), []byte("b1")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v3"), nil, []byte("v1")}, vals)

	require.NoError(t, s.RemoveBatch([][]byte{[]byte("b1"), []byte("b3")}))
	assert.Equal(t, []string{"b2"}, scanAll(t, s))

	require.NoError(t, s.PutBatch(nil))
	require.NoError(t, s.RemoveBatch(nil))
}

func testScanRange(t *testing.T, s store.Store) {
	for _, k := range []string{"d", "a", "c", "b", "e"} {
		require.NoError(t, s.Put([]byte(k), []byte("v"+k)))
	}
	var got []string
	require.NoError(t, s.Scan([]byte("b"), []byte("d"), func(key, value []byte) {
		got = append(got, string(key)+"="+string(value))
	}))
	assert.Equal(t, []string{"b=vb", "c=vc"}, got)

	got = nil
	require.NoError(t, s.Scan([]byte("c"), nil, func(key, _ []byte) {
		got = append(got, string(key))
	}))
	assert.Equal(t, []string{"c", "d", "e"}, got)

	got = nil
	require.NoError(t, s.Scan([]byte("d"), []byte("b"), func(key, _ []byte) {
		got = append(got, string(key))
	}))
	assert.Empty(t, got)
}

func testScanUnsignedOrder(t *testing.T, s store.Store) {
	keys := [][]byte{{0xff}, {0x01}, {0x7f}, {0x80}, {0xfe, 0x00}}
	for _, k := range keys {
		require.NoError(t, s.Put(k, []byte{1}))
	}
	var got [][]byte
	require.NoError(t, s.ScanKeys([]byte{0x00}, nil, func(key, _ []byte) {
		got = append(got, store.CloneBytes(key))
	}))
	assert.Equal(t, [][]byte{{0x01}, {0x7f}, {0x80}, {0xfe, 0x00}, {0xff}}, got)
}

func testScanPrefix(t *testing.T, s store.Store) {
	for _, k := range []string{"app", "apple", "apply", "b", "ap"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}
	var got []string
	require.NoError(t, s.ScanPrefix([]byte("app"), func(key, value []byte) {
		assert.Equal(t, string(key), string(value))
		got = append(got, string(key))
	}))
	assert.Equal(t, []string{"app", "apple", "apply"}, got)

	got = nil
	require.NoError(t, s.ScanPrefix([]byte{0xff, 0xff}, func(key, _ []byte) {
		got = append(got, string(key))
	}))
	assert.Empty(t, got)
}

func testScanPrefixesOverlap(t *testing.T, s store.Store) {
	for _, k := range []string{"x1", "x12", "x2", "y1", "z"} {
		require.NoError(t, s.Put([]byte(k), []byte("v")))
	}
	var got []string
	require.NoError(t, s.ScanPrefixes([][]byte{[]byte("y"), []byte("x1"), []byte("x")}, func(key, _ []byte) {
		got = append(got, string(key))
	}))
	assert.Equal(t, []string{"x1", "x12", "x2", "y1"}, got)
}

func testScanKeys(t *testing.T, s store.Store) {
	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, s.Put([]byte("k2"), []byte("v2")))
	var n int
	require.NoError(t, s.ScanKeysPrefix([]byte("k"), func(key, value []byte) {
		assert.Nil(t, value)
		n++
	}))
	assert.Equal(t, 2, n)
}

func testCallbackReentry(t *testing.T, s store.Store) {
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put([]byte(fmt.Sprintf("r%02d", i)), []byte("v")))
	}
	var inner error
	require.NoError(t, s.ScanKeysPrefix([]byte("r"), func(key, _ []byte) {
		if inner == nil {
			_, _, inner = s.Get(key)
		}
	}))
	require.NoError(t, inner)
}

func assertValue(t *testing.T, s store.Store, key, want string) {
	t.Helper()
	v, ok, err := s.Get([]byte(key))
	require.NoError(t, err)
	require.True(t, ok, "key %q", key)
	assert.Equal(t, want, string(v))
}

func scanAll(t *testing.T, s store.Store) []string {
	t.Helper()
	var keys []string
	require.NoError(t, s.ScanKeys(nil, nil, func(key, _ []byte) {
		keys = append(keys, string(key))
	}))
	return keys
}
