package hist

import (
	"fmt"

	"github.com/ChinmayNoob/histkv/store"
)

var (
	// ErrReadOnly is returned by writes on the read views.
	ErrReadOnly = store.ErrReadOnly

	ErrReservedKey      = fmt.Errorf("%w: reserved key", store.ErrStorage)
	ErrReservedValue    = fmt.Errorf("%w: value equals the deletion marker", store.ErrStorage)
	ErrInvalidTimestamp = fmt.Errorf("%w: timestamp must be positive", store.ErrStorage)
	ErrMalformedKey     = fmt.Errorf("%w: malformed historized key", store.ErrStorage)
)

func malformed(raw []byte) error {
	return fmt.Errorf("%w: %q", ErrMalformedKey, raw)
}

func checkTimestamp(ts int64) error {
	if ts <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimestamp, ts)
	}
	return nil
}
