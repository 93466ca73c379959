// Package wal is the write-ahead log of the LSM engine.
//
// Every frame is [u32 payloadLen][payload]. A single record payload is
// [u8 op][u64 seq][u32 keyLen][u32 valLen][key][val]. A batch payload is
// [u8 OpBatch][u64 firstSeq][u32 count] followed by count entries of
// [u8 op][u32 keyLen][u32 valLen][key][val]; entry i carries firstSeq+i.
// A torn trailing frame is ignored on replay, so a batch is applied entirely
// or not at all, and Repair cuts it off before the log is appended to again.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ChinmayNoob/histkv/store"
)

type Op uint8

const (
	OpPut    Op = 1
	OpDelete Op = 2
	OpBatch  Op = 3
)

const (
	singleHeader = 1 + 8 + 4 + 4
	batchHeader  = 1 + 8 + 4
	entryHeader  = 1 + 4 + 4
)

var (
	ErrCorrupt = fmt.Errorf("%w: wal", store.ErrCorrupt)
	ErrClosed  = errors.New("wal is closed")
)

type Record struct {
	Op    Op
	Seq   uint64
	Key   []byte
	Value []byte
}

type WAL struct {
	f           *os.File
	w           *bufio.Writer
	syncOnWrite bool
}

func Open(path string, syncOnWrite bool) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &WAL{
		f:           f,
		w:           bufio.NewWriter(f),
		syncOnWrite: syncOnWrite,
	}, nil
}

func (w *WAL) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Append writes a single put or delete record.
func (w *WAL) Append(r Record) error {
	if w == nil || w.f == nil {
		return ErrClosed
	}
	payload := make([]byte, singleHeader, singleHeader+len(r.Key)+len(r.Value))
	payload[0] = byte(r.Op)
	binary.LittleEndian.PutUint64(payload[1:9], r.Seq)
	binary.LittleEndian.PutUint32(payload[9:13], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(payload[13:17], uint32(len(r.Value)))
	payload = append(payload, r.Key...)
	payload = append(payload, r.Value...)
	return w.writeFrame(payload)
}

// AppendBatch writes recs as one frame. Their sequence numbers must be
// consecutive, starting at recs[0].Seq.
func (w *WAL) AppendBatch(recs []Record) error {
	if w == nil || w.f == nil {
		return ErrClosed
	}
	if len(recs) == 0 {
		return nil
	}
	size := batchHeader
	for _, r := range recs {
		size += entryHeader + len(r.Key) + len(r.Value)
	}
	payload := make([]byte, batchHeader, size)
	payload[0] = byte(OpBatch)
	binary.LittleEndian.PutUint64(payload[1:9], recs[0].Seq)
	binary.LittleEndian.PutUint32(payload[9:13], uint32(len(recs)))
	var hdr [entryHeader]byte
	for _, r := range recs {
		hdr[0] = byte(r.Op)
		binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(r.Key)))
		binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(r.Value)))
		payload = append(payload, hdr[:]...)
		payload = append(payload, r.Key...)
		payload = append(payload, r.Value...)
	}
	return w.writeFrame(payload)
}

func (w *WAL) writeFrame(payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.syncOnWrite {
		return w.f.Sync()
	}
	return nil
}

// Replay feeds every complete record of the log at path to fn. It returns the
// highest sequence number seen and the size of the complete prefix of the
// log; anything past it is a torn tail that Repair cuts off. A missing file is
// an empty log.
func Replay(path string, fn func(Record) error) (maxSeq uint64, valid int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	size := fi.Size()

	r := bufio.NewReaderSize(f, 64*1024)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			// A partial length prefix is the tail of a crashed write.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return maxSeq, valid, nil
			}
			return maxSeq, valid, err
		}
		frameLen := int64(binary.LittleEndian.Uint32(lenBuf[:]))
		if frameLen == 0 {
			return maxSeq, valid, ErrCorrupt
		}
		if frameLen > size-valid-4 {
			// The frame runs past the end of the file.
			return maxSeq, valid, nil
		}
		frame := make([]byte, frameLen)
		if _, err := io.ReadFull(r, frame); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return maxSeq, valid, nil
			}
			return maxSeq, valid, err
		}
		recs, err := decodeFrame(frame)
		if err != nil {
			return maxSeq, valid, err
		}
		for _, rr := range recs {
			if rr.Seq > maxSeq {
				maxSeq = rr.Seq
			}
			if err := fn(rr); err != nil {
				return maxSeq, valid, err
			}
		}
		valid += 4 + frameLen
	}
}

// Repair truncates the log at path to size, dropping a torn tail reported by
// Replay, so that new frames are not appended after it. It reports whether
// anything was cut.
func Repair(path string, size int64) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if fi.Size() <= size {
		return false, nil
	}
	if err := os.Truncate(path, size); err != nil {
		return false, err
	}
	return true, nil
}

func decodeFrame(b []byte) ([]Record, error) {
	if len(b) == 0 {
		return nil, ErrCorrupt
	}
	switch Op(b[0]) {
	case OpPut, OpDelete:
		r, err := decodeSingle(b)
		if err != nil {
			return nil, err
		}
		return []Record{r}, nil
	case OpBatch:
		return decodeBatch(b)
	default:
		return nil, ErrCorrupt
	}
}

func decodeSingle(b []byte) (Record, error) {
	if len(b) < singleHeader {
		return Record{}, ErrCorrupt
	}
	seq := binary.LittleEndian.Uint64(b[1:9])
	keyLen := int(binary.LittleEndian.Uint32(b[9:13]))
	valLen := int(binary.LittleEndian.Uint32(b[13:17]))
	if len(b) != singleHeader+keyLen+valLen {
		return Record{}, ErrCorrupt
	}
	key := cloneBytes(b[singleHeader : singleHeader+keyLen])
	val := cloneBytes(b[singleHeader+keyLen:])
	return Record{Op: Op(b[0]), Seq: seq, Key: key, Value: val}, nil
}

func decodeBatch(b []byte) ([]Record, error) {
	if len(b) < batchHeader {
		return nil, ErrCorrupt
	}
	seq := binary.LittleEndian.Uint64(b[1:9])
	count := int(binary.LittleEndian.Uint32(b[9:13]))
	recs := make([]Record, 0, count)
	off := batchHeader
	for i := 0; i < count; i++ {
		if len(b)-off < entryHeader {
			return nil, ErrCorrupt
		}
		op := Op(b[off])
		if op != OpPut && op != OpDelete {
			return nil, ErrCorrupt
		}
		keyLen := int(binary.LittleEndian.Uint32(b[off+1 : off+5]))
		valLen := int(binary.LittleEndian.Uint32(b[off+5 : off+9]))
		off += entryHeader
		if len(b)-off < keyLen+valLen {
			return nil, ErrCorrupt
		}
		recs = append(recs, Record{
			Op:    op,
			Seq:   seq + uint64(i),
			Key:   cloneBytes(b[off : off+keyLen]),
			Value: cloneBytes(b[off+keyLen : off+keyLen+valLen]),
		})
		off += keyLen + valLen
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return recs, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
