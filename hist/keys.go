// Package hist layers timestamped history over an ordered byte store.
//
// Every logical write at timestamp T stores a revision record under
// key ++ Separator ++ T (8 bytes, big-endian) and mirrors the latest value
// under HeadPrefix ++ key. Deletions write the one-byte tombstone as the
// revision value and drop the head record. The views in this package read
// and rewrite that layout: HeadReadView and HeadWriteView work on the head
// records, TimestampReadView reconstructs the state as of a past timestamp
// and RollbackView truncates history.
package hist

import (
	"bytes"
	"encoding/binary"
)

const (
	// HeadPrefix starts the key of every head record.
	HeadPrefix = "#_HEAD_#"
	// Separator sits between a key and the timestamp of its revision.
	Separator byte = 0xFE
	// TimestampLen is the length of the timestamp suffix of a revision key.
	TimestampLen = 8
)

var (
	headPrefix = []byte(HeadPrefix)
	tombstone  = []byte{0x00}
)

// Tombstone returns the value that marks a deletion.
func Tombstone() []byte {
	return []byte{0x00}
}

// IsTombstone reports whether value is the deletion marker.
func IsTombstone(value []byte) bool {
	return bytes.Equal(value, tombstone)
}

// HeadKey returns the head record key of key. A nil key yields HeadPrefix.
func HeadKey(key []byte) []byte {
	out := make([]byte, 0, len(headPrefix)+len(key))
	out = append(out, headPrefix...)
	return append(out, key...)
}

// HeadKeys maps HeadKey over keys.
func HeadKeys(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = HeadKey(k)
	}
	return out
}

// IsHeadKey reports whether raw is the key of a head record.
func IsHeadKey(raw []byte) bool {
	return bytes.HasPrefix(raw, headPrefix)
}

// StripHeadPrefix returns the original key of a head record key. The result
// aliases raw.
func StripHeadPrefix(raw []byte) []byte {
	return raw[len(headPrefix):]
}

// TimestampSuffix encodes ts the way revision keys carry it.
func TimestampSuffix(ts int64) []byte {
	b := make([]byte, TimestampLen)
	binary.BigEndian.PutUint64(b, uint64(ts))
	return b
}

// RevisionKey returns key ++ Separator ++ suffix.
func RevisionKey(key, suffix []byte) []byte {
	out := make([]byte, 0, len(key)+1+len(suffix))
	out = append(out, key...)
	out = append(out, Separator)
	return append(out, suffix...)
}

// revisionPrefix is the common prefix of all revision keys of key.
func revisionPrefix(key []byte) []byte {
	return RevisionKey(key, nil)
}

func isRevisionKey(raw []byte) bool {
	n := len(raw) - TimestampLen - 1
	return n >= 0 && raw[n] == Separator
}

// Kind tells head records from revision records.
type Kind int

const (
	KindHead Kind = iota + 1
	KindRevision
)

func (k Kind) String() string {
	switch k {
	case KindHead:
		return "head"
	case KindRevision:
		return "revision"
	default:
		return "unknown"
	}
}

// Key is a decoded raw key of a historized store.
type Key struct {
	Kind Kind
	// Key is the original key. It aliases the raw key passed to ParseKey.
	Key []byte
	// Timestamp is set for revision keys.
	Timestamp int64

	raw []byte
}

// ParseKey decodes raw. Keys that are neither head nor revision keys yield
// ErrMalformedKey.
func ParseKey(raw []byte) (Key, error) {
	if IsHeadKey(raw) {
		return Key{Kind: KindHead, Key: StripHeadPrefix(raw), raw: raw}, nil
	}
	if !isRevisionKey(raw) {
		return Key{}, malformed(raw)
	}
	n := len(raw) - TimestampLen
	return Key{
		Kind:      KindRevision,
		Key:       raw[:n-1],
		Timestamp: int64(binary.BigEndian.Uint64(raw[n:])),
		raw:       raw,
	}, nil
}

// Raw returns the encoded key.
func (k Key) Raw() []byte {
	return k.raw
}

// Compare orders keys the way the store orders their raw encodings.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k.raw, other.raw)
}
