package store

import (
	"errors"
	"fmt"
)

// ErrStorage is the single failure kind of this module. Every error returned
// by a Store satisfies errors.Is(err, ErrStorage).
var ErrStorage = errors.New("storage error")

var (
	ErrReadOnly = fmt.Errorf("%w: operation not supported by a read-only store", ErrStorage)
	ErrCorrupt  = fmt.Errorf("%w: corrupt data", ErrStorage)
	ErrClosed   = fmt.Errorf("%w: store is closed", ErrStorage)
)

// Wrap marks err as a storage failure. It returns nil for nil and leaves errors
// that already carry ErrStorage untouched.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
