package storeutil

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ChinmayNoob/histkv/store"
)

const (
	recordTerminator = -1
	// importBatchBytes is the minimum amount of key and value data buffered
	// before ImportStore writes a batch.
	importBatchBytes = 1 << 20
)

// ExportStore writes every record of st to w and returns the record count.
//
// Each record is a 4-byte big-endian key length, the key, a 4-byte
// big-endian value length and the value. A length of -1 ends the stream.
func ExportStore(st store.Store, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	var n int
	c := store.Catch(func(key, value []byte) error {
		if err := writeChunk(bw, key); err != nil {
			return err
		}
		if err := writeChunk(bw, value); err != nil {
			return err
		}
		n++
		return nil
	})
	if err := c.Finish(st.Scan(nil, nil, c.Callback)); err != nil {
		return n, err
	}
	if err := writeLength(bw, recordTerminator); err != nil {
		return n, store.Wrap("export", err)
	}
	return n, store.Wrap("export", bw.Flush())
}

func writeChunk(w *bufio.Writer, b []byte) error {
	if len(b) > math.MaxInt32 {
		return fmt.Errorf("record of %d bytes too large to export", len(b))
	}
	if err := writeLength(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeLength(w io.Writer, n int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	_, err := w.Write(buf[:])
	return err
}

// ImportStore reads a stream produced by ExportStore into st and returns the
// number of records imported. Records are written in batches as they are
// read; on error, batches written before it stay in st.
func ImportStore(st store.Store, r io.Reader) (int, error) {
	br := bufio.NewReader(r)
	var (
		n     int
		size  int
		batch []store.Pair
	)
	for {
		keyLen, err := readLength(br)
		if err != nil {
			return n, err
		}
		if keyLen == recordTerminator {
			if err := st.PutBatch(batch); err != nil {
				return n, err
			}
			return n + len(batch), nil
		}
		key, err := readChunk(br, keyLen)
		if err != nil {
			return n, err
		}
		valueLen, err := readLength(br)
		if err != nil {
			return n, err
		}
		value, err := readChunk(br, valueLen)
		if err != nil {
			return n, err
		}
		batch = append(batch, store.Pair{Key: key, Value: value})
		size += len(key) + len(value)
		if size >= importBatchBytes {
			if err := st.PutBatch(batch); err != nil {
				return n, err
			}
			n += len(batch)
			batch, size = nil, 0
		}
	}
}

func readLength(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, streamError(err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func readChunk(r io.Reader, n int32) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrBadStream, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, streamError(err)
	}
	return b, nil
}

func streamError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: unexpected end of input", ErrBadStream)
	}
	return store.Wrap("import", err)
}
