package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/histkv/store"
	"github.com/ChinmayNoob/histkv/store/storetest"
)

func openTestSystem(t *testing.T) *System {
	t.Helper()
	sys, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

func TestContract(t *testing.T) {
	sys := openTestSystem(t)
	var n int
	storetest.Run(t, func(t *testing.T) store.Store {
		n++
		st, err := sys.OpenStore(string(rune('a' + n)))
		require.NoError(t, err)
		return st
	})
}

func TestSystem(t *testing.T) {
	storetest.RunSystem(t, openTestSystem(t))
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	sys, err := Open(path)
	require.NoError(t, err)
	st, err := sys.OpenStore("s")
	require.NoError(t, err)
	require.NoError(t, st.Put([]byte{0x00, 0xff}, []byte("v")))
	require.NoError(t, sys.Close())

	sys, err = Open(path)
	require.NoError(t, err)
	defer sys.Close()
	st, err = sys.OpenStore("s")
	require.NoError(t, err)
	v, ok, err := st.Get([]byte{0x00, 0xff})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestInMemory(t *testing.T) {
	sys, err := Open(":memory:")
	require.NoError(t, err)
	defer sys.Close()
	st, err := sys.OpenStore("m")
	require.NoError(t, err)
	require.NoError(t, st.Put([]byte("k"), []byte("v")))
	_, ok, err := st.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClosed(t *testing.T) {
	sys, err := Open(":memory:")
	require.NoError(t, err)
	st, err := sys.OpenStore("m")
	require.NoError(t, err)
	require.NoError(t, sys.Close())
	assert.ErrorIs(t, st.Put([]byte("k"), []byte("v")), store.ErrStorage)
}
