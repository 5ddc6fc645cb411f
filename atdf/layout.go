package atdf

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordSize is the fixed length of one ATDF logical record in bytes.
const RecordSize = 288

// FieldDef is one entry of a record layout table.
type FieldDef struct {
	Enc  Encoding
	Bits int
}

// Layout is an ordered field table describing one logical-record format.
// Items are numbered from one, matching the interface document tables.
type Layout struct {
	Name   string
	Fields []FieldDef
	bits   int
}

// parseLayout expands a compact field-table description into a Layout.
// Tokens are comma separated: "u32" unsigned, "i18" signed, "b16" BCD,
// "p120" spare bits, with an optional repeat prefix as in "18*u36".
func parseLayout(name, desc string) (*Layout, error) {
	l := &Layout{Name: name}
	for _, tok := range strings.Split(desc, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		repeat := 1
		if i := strings.IndexByte(tok, '*'); i >= 0 {
			n, err := strconv.Atoi(tok[:i])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("layout %s: bad repeat in %q", name, tok)
			}
			repeat = n
			tok = tok[i+1:]
		}
		var enc Encoding
		switch tok[0] {
		case 'u':
			enc = EncUint
		case 'i':
			enc = EncInt
		case 'b':
			enc = EncBCD
		case 'p':
			enc = EncPad
		default:
			return nil, fmt.Errorf("layout %s: unknown encoding in %q", name, tok)
		}
		bits, err := strconv.Atoi(tok[1:])
		if err != nil || bits < 1 {
			return nil, fmt.Errorf("layout %s: bad width in %q", name, tok)
		}
		if enc != EncPad && bits > 64 {
			return nil, fmt.Errorf("layout %s: %q wider than 64 bits must be spare", name, tok)
		}
		for i := 0; i < repeat; i++ {
			l.Fields = append(l.Fields, FieldDef{Enc: enc, Bits: bits})
			l.bits += bits
		}
	}
	if l.bits > RecordSize*8 {
		return nil, fmt.Errorf("layout %s: %d bits exceeds the %d-bit record", name, l.bits, RecordSize*8)
	}
	return l, nil
}

func mustLayout(name, desc string) *Layout {
	l, err := parseLayout(name, desc)
	if err != nil {
		panic(err)
	}
	return l
}

// Bits is the total width of the table. May be less than the record
// width; trailing bits are spare.
func (l *Layout) Bits() int { return l.bits }

// Items holds decoded field values indexed by one-based item number.
type Items []int64

func (it Items) At(n int) int64 { return it[n-1] }

func (it Items) U(n int) uint64 { return uint64(it[n-1]) }

// Decode runs the whole field table against one raw record. Invalid BCD
// returns a *MalformedFieldError; spare fields decode as zero.
func (l *Layout) Decode(buf []byte) (Items, error) {
	if len(buf) != RecordSize {
		return nil, fmt.Errorf("layout %s: record is %d bytes, want %d", l.Name, len(buf), RecordSize)
	}
	r := NewBitReader(buf)
	items := make(Items, len(l.Fields))
	for i, f := range l.Fields {
		switch f.Enc {
		case EncUint:
			v, err := r.Uint(f.Bits)
			if err != nil {
				return nil, err
			}
			items[i] = int64(v)
		case EncInt:
			v, err := r.Int(f.Bits)
			if err != nil {
				return nil, err
			}
			items[i] = v
		case EncBCD:
			v, err := r.BCD(f.Bits, fmt.Sprintf("item %d", i+1))
			if err != nil {
				return nil, err
			}
			items[i] = int64(v)
		case EncPad:
			if err := r.Skip(f.Bits); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

// Encode builds a raw record from one-based item values, the inverse of
// Decode. Used for synthetic fixtures and the round-trip property.
func (l *Layout) Encode(items map[int]int64) ([]byte, error) {
	w := NewBitWriter(RecordSize)
	for i, f := range l.Fields {
		v := items[i+1]
		switch f.Enc {
		case EncUint:
			if f.Bits < 64 && uint64(v) >= 1<<uint(f.Bits) {
				return nil, fmt.Errorf("layout %s: item %d value %d exceeds %d bits", l.Name, i+1, v, f.Bits)
			}
			w.PutUint(f.Bits, uint64(v))
		case EncInt:
			w.PutInt(f.Bits, v)
		case EncBCD:
			w.PutBCD(f.Bits, uint64(v))
		case EncPad:
			w.pos += f.Bits
		}
	}
	return w.Bytes(), nil
}

// Data-record layouts, transcribed from the TRK-2-25 / SFOC-NAV-2-25
// table 3-3 field listings. Format 4 covers records written 1997-04-14
// and before (36-bit-word era, BCD time tag); format 8 covers records
// written 1997-04-15 and after.
var (
	layoutFmt4 = mustLayout("trk-2-25 data",
		`2*u36, b12, b16, b8, b12, b8, u28, 3*u8, u4, 4*u8, u5, 2*u1, i4, 2*u1, 2*u3, 2*u1,
		 u2, u3, u10, 5*u36, u20, p72, i16, 3*u36, i36, 18*u36, 2*i36, 2*i18, 2*u3, u2,
		 2*u1, u3, u1, 2*u4, 2*u1, u30, 2*u18, i18, i36, 12*u1, u4, u1, 2*u2, 2*u1, u13,
		 u24, i12, 3*i36, i22, u14, u33, 3*u1, i36, u5, i31, 2*u36, p144, u36, p144`)

	layoutFmt8 = mustLayout("sfoc-nav-2-25 data",
		`u32, u8, u32, u12, u16, u8, u8, u8, u20, u10, u8, u6, u4, u4, u16, u8, u8, u8,
		 u1, i18, 5*u1, u6, u6, u4, u32, 6*u24, u8, u28, 3*u24, 2*i24, 2*u32, i32, 27*u24,
		 i4, i32, i4, i32, 2*i18, u8, u4, u2, 4*u1, u8, u10, 2*i18, 2*u24, 9*u1, u4, u1,
		 u10, u24, i12, i4, i32, i4, i32, u4, u32, i22, u14, u23, 3*u1, u10, u8, 2*i32,
		 u4, u32, u4, u32, 13*u1, u28, u30, 9*u32`)

	// File identification logical record, table 3-1. Items 5-8 spell the
	// "ATDF" marker in oddly-sized character fields.
	layoutFileID = mustLayout("file identification",
		`u32, u8, u32, p120, u16, u8, u12, u8, p2068`)

	// Transponder logical record, table 3-2.
	layoutTransponder = mustLayout("transponder",
		`u32, u8, u32, u12, u16, u8, u12, u8, u12, u16, u24, u12, u16, u8, u12, u8, u16, 2*u36, p1980`)
)

func layoutFor(format int) (*Layout, error) {
	switch format {
	case 4:
		return layoutFmt4, nil
	case 8:
		return layoutFmt8, nil
	}
	return nil, fmt.Errorf("invalid ATDF format %d: want 4 (TRK-2-25, 1997-04-14 and before) or 8 (SFOC-NAV-2-25, 1997-04-15 and after)", format)
}
