package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte("abc"), []byte("abd")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
		{nil, nil},
		{[]byte{}, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrefixEnd(tt.in), "%x", tt.in)
	}

	in := []byte("ab")
	_ = PrefixEnd(in)
	assert.Equal(t, []byte("ab"), in)
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange([]byte("b"), []byte("a"), []byte("c")))
	assert.True(t, InRange([]byte("a"), []byte("a"), []byte("c")))
	assert.False(t, InRange([]byte("c"), []byte("a"), []byte("c")))
	assert.True(t, InRange([]byte("z"), []byte("a"), nil))
	assert.True(t, InRange([]byte{}, nil, nil))
}

func TestCloneAndConcat(t *testing.T) {
	assert.Nil(t, CloneBytes(nil))
	assert.NotNil(t, CloneBytes([]byte{}))

	a := []byte("ab")
	c := Concat(a, []byte("cd"))
	assert.Equal(t, []byte("abcd"), c)
	c[0] = 'X'
	assert.Equal(t, []byte("ab"), a)
}

func TestDisjointPrefixes(t *testing.T) {
	got := DisjointPrefixes([][]byte{[]byte("ab"), []byte("b"), []byte("a"), []byte("abc"), []byte("ba")})
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, got)

	got = DisjointPrefixes([][]byte{[]byte("x"), {}, []byte("y")})
	assert.Equal(t, [][]byte{{}}, got)
}

func TestCatcher(t *testing.T) {
	boom := errors.New("boom")
	var seen []string
	c := Catch(func(key, _ []byte) error {
		seen = append(seen, string(key))
		if string(key) == "b" {
			return boom
		}
		return nil
	})
	for _, k := range []string{"a", "b", "c"} {
		c.Callback([]byte(k), nil)
	}
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, boom, c.Err())

	err := c.Finish(nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrStorage)

	scanErr := Wrap("scan", errors.New("disk"))
	assert.Equal(t, scanErr, c.Finish(scanErr))

	require.NoError(t, Catch(func(_, _ []byte) error { return nil }).Finish(nil))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	err := Wrap("read", errors.New("io"))
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "read")

	assert.Same(t, ErrCorrupt, Wrap("again", ErrCorrupt))
	assert.ErrorIs(t, ErrReadOnly, ErrStorage)
	assert.ErrorIs(t, ErrClosed, ErrStorage)
}
