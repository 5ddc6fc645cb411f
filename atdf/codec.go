package atdf

import (
	"fmt"
)

// Encoding selects how a packed field's bits are interpreted.
type Encoding uint8

const (
	EncUint Encoding = iota // unsigned big-endian binary
	EncInt                  // two's-complement signed
	EncBCD                  // packed binary-coded decimal, one digit per nibble
	EncPad                  // spare bits, skipped without interpretation
)

// MalformedFieldError reports bits that do not decode to a valid value
// under the field's encoding. Recoverable: the enclosing record becomes
// KindUnknown, the run continues.
type MalformedFieldError struct {
	Field  string
	Offset int // bit offset within the record
	Reason string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed field %s at bit %d: %s", e.Field, e.Offset, e.Reason)
}

// BitReader decodes fixed-width packed fields from a raw record buffer.
// Fields are bit-granular and may span byte boundaries.
type BitReader struct {
	buf []byte
	pos int
}

func NewBitReader(buf []byte) *BitReader {
	return &BitReader{buf: buf}
}

func (r *BitReader) Pos() int { return r.pos }

func (r *BitReader) Remaining() int { return len(r.buf)*8 - r.pos }

func (r *BitReader) Skip(bits int) error {
	if bits < 0 || r.pos+bits > len(r.buf)*8 {
		return fmt.Errorf("skip of %d bits at %d exceeds record of %d bits", bits, r.pos, len(r.buf)*8)
	}
	r.pos += bits
	return nil
}

// Uint reads an unsigned big-endian value of 1 to 64 bits.
func (r *BitReader) Uint(bits int) (uint64, error) {
	if bits < 1 || bits > 64 {
		return 0, fmt.Errorf("unsupported field width %d", bits)
	}
	if r.pos+bits > len(r.buf)*8 {
		return 0, fmt.Errorf("read of %d bits at %d exceeds record of %d bits", bits, r.pos, len(r.buf)*8)
	}
	var v uint64
	for i := 0; i < bits; i++ {
		b := r.buf[r.pos>>3]
		v = v<<1 | uint64((b>>(7-uint(r.pos&7)))&1)
		r.pos++
	}
	return v, nil
}

// Int reads a two's-complement signed value of 1 to 64 bits.
func (r *BitReader) Int(bits int) (int64, error) {
	v, err := r.Uint(bits)
	if err != nil {
		return 0, err
	}
	if bits < 64 && v&(1<<(uint(bits)-1)) != 0 {
		v |= ^uint64(0) << uint(bits)
	}
	return int64(v), nil
}

// BCD reads a packed binary-coded-decimal value. The width must be a
// multiple of four; a nibble >= 10 is a malformed field.
func (r *BitReader) BCD(bits int, field string) (uint64, error) {
	if bits < 4 || bits%4 != 0 || bits > 64 {
		return 0, fmt.Errorf("unsupported BCD width %d", bits)
	}
	start := r.pos
	var v uint64
	for i := 0; i < bits/4; i++ {
		nib, err := r.Uint(4)
		if err != nil {
			return 0, err
		}
		if nib > 9 {
			return 0, &MalformedFieldError{Field: field, Offset: start, Reason: fmt.Sprintf("invalid BCD nibble %d", nib)}
		}
		v = v*10 + nib
	}
	return v, nil
}

// BitWriter is the symmetric encoder, used to build synthetic records
// for fixtures and round-trip checks.
type BitWriter struct {
	buf []byte
	pos int
}

func NewBitWriter(size int) *BitWriter {
	return &BitWriter{buf: make([]byte, size)}
}

func (w *BitWriter) Bytes() []byte { return w.buf }

func (w *BitWriter) PutUint(bits int, v uint64) {
	for i := bits - 1; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			w.buf[w.pos>>3] |= 1 << (7 - uint(w.pos&7))
		}
		w.pos++
	}
}

func (w *BitWriter) PutInt(bits int, v int64) {
	w.PutUint(bits, uint64(v)&(^uint64(0)>>uint(64-bits)))
}

func (w *BitWriter) PutBCD(bits int, v uint64) {
	digits := bits / 4
	for i := digits - 1; i >= 0; i-- {
		div := uint64(1)
		for j := 0; j < i; j++ {
			div *= 10
		}
		w.PutUint(4, (v/div)%10)
	}
}

// TRK-2-25 stores wide counters split across machine words with decimal
// or binary scale factors. These reassemble them into float64 values.

// SplitHighLow: hp*10^4 + lp*10^-3 (format 4 counters, transponder frequency).
func SplitHighLow(hp, lp uint64) float64 {
	return float64(hp)*1e4 + float64(lp)*1e-3
}

// SplitHIL: hp*10^8 + ip*10^1 + lp*10^-6 (format 8 Doppler/range counters).
func SplitHIL(hp, ip, lp uint64) float64 {
	return float64(hp)*1e8 + float64(ip)*1e1 + float64(lp)*1e-6
}

// SplitKilo: hp*10^3 + lp*10^-6 (reference frequency and ramp words).
func SplitKilo(hp int64, lp uint64) float64 {
	return float64(hp)*1e3 + float64(lp)*1e-6
}

// SplitBinary: hp*2^40 + ip*2^16 + lp*2^-8 + op*2^-32 (uplink phase).
func SplitBinary(hp, ip, lp, op uint64) float64 {
	return float64(hp)*(1<<40) + float64(ip)*(1<<16) + float64(lp)/(1<<8) + float64(op)/(1<<32)
}
