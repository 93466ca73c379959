// Package storeutil holds store decorators and bulk helpers that work on any
// store.Store.
package storeutil

import (
	"fmt"

	"github.com/ChinmayNoob/histkv/store"
)

var (
	ErrReadOnly = store.ErrReadOnly
	// ErrInvalidName is returned for partition names containing
	// PartitionSeparator.
	ErrInvalidName = fmt.Errorf("%w: invalid partition name", store.ErrStorage)
	// ErrBadStream is returned by ImportStore for truncated or inconsistent
	// input.
	ErrBadStream = fmt.Errorf("%w: malformed export stream", store.ErrStorage)
)
