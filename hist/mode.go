package hist

import (
	"fmt"

	"github.com/ChinmayNoob/histkv/store"
)

type modeKind int

const (
	modeReadHead modeKind = iota
	modeReadTimestamp
	modeWriteTimestamp
)

// Mode selects which view Open puts over a historized store.
type Mode struct {
	kind modeKind
	ts   int64
}

// ReadHead reads the latest values.
func ReadHead() Mode {
	return Mode{kind: modeReadHead}
}

// ReadTimestamp reads the state as of ts.
func ReadTimestamp(ts int64) Mode {
	return Mode{kind: modeReadTimestamp, ts: ts}
}

// WriteTimestamp reads the latest values and writes revisions at ts.
func WriteTimestamp(ts int64) Mode {
	return Mode{kind: modeWriteTimestamp, ts: ts}
}

func (m Mode) Open(st store.Store) (store.Store, error) {
	switch m.kind {
	case modeReadTimestamp:
		return NewTimestampReadView(st, m.ts)
	case modeWriteTimestamp:
		return NewHeadWriteView(st, m.ts)
	default:
		return NewHeadReadView(st), nil
	}
}

func (m Mode) String() string {
	switch m.kind {
	case modeReadTimestamp:
		return fmt.Sprintf("read@%d", m.ts)
	case modeWriteTimestamp:
		return fmt.Sprintf("write@%d", m.ts)
	default:
		return "head"
	}
}
