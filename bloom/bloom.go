// Package bloom implements the per-table key filter of the LSM engine.
// A filter has no false negatives; false positives cost one table probe.
package bloom

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
)

var ErrInvalid = errors.New("bloom: invalid encoding")

type Filter struct {
	k    uint8
	bits uint32
	buf  []byte
}

// New sizes a filter for nkeys keys at bitsPerKey bits each. The probe count
// is bitsPerKey*ln2, which minimises the false positive rate.
func New(nkeys int, bitsPerKey int) *Filter {
	if nkeys < 1 {
		nkeys = 1
	}
	if bitsPerKey <= 0 {
		bitsPerKey = 10
	}
	k := uint8(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	bits := uint32(nkeys * bitsPerKey)
	if bits < 64 {
		bits = 64
	}
	byteLen := (bits + 7) / 8
	return &Filter{k: k, bits: byteLen * 8, buf: make([]byte, byteLen)}
}

func (f *Filter) Add(key []byte) {
	h, delta := hash(key)
	for i := uint8(0); i < f.k; i++ {
		bit := h % f.bits
		f.buf[bit/8] |= 1 << (bit % 8)
		h += delta
	}
}

func (f *Filter) MayContain(key []byte) bool {
	h, delta := hash(key)
	for i := uint8(0); i < f.k; i++ {
		bit := h % f.bits
		if f.buf[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// MarshalBinary encodes the filter as [u8 k][u32 bits][bitmap].
func (f *Filter) MarshalBinary() ([]byte, error) {
	out := make([]byte, 5+len(f.buf))
	out[0] = f.k
	binary.LittleEndian.PutUint32(out[1:5], f.bits)
	copy(out[5:], f.buf)
	return out, nil
}

func (f *Filter) UnmarshalBinary(b []byte) error {
	if len(b) < 5 {
		return ErrInvalid
	}
	k := b[0]
	bits := binary.LittleEndian.Uint32(b[1:5])
	if k == 0 || bits == 0 || uint32(len(b)-5)*8 != bits {
		return ErrInvalid
	}
	f.k = k
	f.bits = bits
	f.buf = append([]byte(nil), b[5:]...)
	return nil
}

// hash derives the start position and stride of the probe sequence from one
// 64-bit FNV-1a hash. The stride is odd so probes do not collapse.
func hash(key []byte) (uint32, uint32) {
	h := fnv.New64a()
	_, _ = h.Write(key)
	sum := h.Sum64()
	return uint32(sum), uint32(sum>>32) | 1
}
