package store

import (
	"bytes"
	"sort"
)

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists (empty or all-0xff prefix).
func PrefixEnd(prefix []byte) []byte {
	end := CloneBytes(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// InRange reports whether key lies in [begin, end). A nil end is unbounded.
func InRange(key, begin, end []byte) bool {
	if bytes.Compare(key, begin) < 0 {
		return false
	}
	return end == nil || bytes.Compare(key, end) < 0
}

// CloneBytes copies b. The copy of a non-nil empty slice is non-nil.
func CloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Concat returns a new slice holding a followed by b.
func Concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// DisjointPrefixes sorts prefixes and drops every prefix that is covered by a
// shorter one, so that scanning the result in order visits each key once and
// in ascending order.
func DisjointPrefixes(prefixes [][]byte) [][]byte {
	sorted := make([][]byte, len(prefixes))
	copy(sorted, prefixes)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	out := make([][]byte, 0, len(sorted))
	for _, p := range sorted {
		if n := len(out); n > 0 && bytes.HasPrefix(p, out[n-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ScanPrefixesOnce runs scan for each of the disjoint prefixes. Backends use
// it to implement ScanPrefixes.
func ScanPrefixesOnce(prefixes [][]byte, scan func(prefix []byte, fn KeyValueFunc) error, fn KeyValueFunc) error {
	for _, p := range DisjointPrefixes(prefixes) {
		if err := scan(p, fn); err != nil {
			return err
		}
	}
	return nil
}
