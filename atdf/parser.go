package atdf

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownRecordTypeError reports a discriminator outside the known set.
// Recoverable: the record becomes KindUnknown and processing continues.
type UnknownRecordTypeError struct {
	Type int
}

func (e *UnknownRecordTypeError) Error() string {
	return fmt.Sprintf("unknown record type %d", e.Type)
}

// ErrBadHeader marks a file whose identification records fail validation.
var ErrBadHeader = errors.New("invalid ATDF header")

// FormatOf sniffs the record-format discriminator from the leading 32
// bits of a data record. Format 4 stores the value 64 in a 36-bit word,
// whose top 32 bits read back as 4, so both eras sniff directly.
func FormatOf(buf []byte) int {
	r := NewBitReader(buf)
	v, err := r.Uint(32)
	if err != nil {
		return 0
	}
	return int(v)
}

// Parser decodes raw records of one format version into tagged Records.
type Parser struct {
	format int
	layout *Layout
}

func NewParser(format int) (*Parser, error) {
	l, err := layoutFor(format)
	if err != nil {
		return nil, err
	}
	return &Parser{format: format, layout: l}, nil
}

func (p *Parser) Format() int { return p.format }

// Parse classifies and decodes one raw record. Decode failures are
// captured in the returned record, never propagated: a single corrupt
// record must not abort the file.
func (p *Parser) Parse(buf []byte, index int, offset int64) *Record {
	rec := &Record{Kind: KindUnknown, Index: index, Offset: offset}
	if len(buf) != RecordSize {
		rec.Err = fmt.Errorf("short record: %d bytes", len(buf))
		return rec
	}

	// Catalog and comment records share the u32+u8+u32 prefix of the
	// header tables regardless of the data-record era.
	switch headerRecType(buf) {
	case recTypeFileID:
		fid, err := ParseFileID(buf)
		if err != nil {
			rec.Err = err
			return rec
		}
		rec.Kind = KindFileID
		rec.FileID = fid
		return rec
	case recTypeTransponder:
		tr, err := ParseTransponder(buf)
		if err != nil {
			rec.Err = err
			return rec
		}
		rec.Kind = KindTransponder
		rec.Transponder = tr
		return rec
	case recTypeComment:
		rec.Kind = KindComment
		rec.Comment = commentText(buf)
		return rec
	}

	if FormatOf(buf) != p.format {
		rec.Kind = KindFiller
		return rec
	}

	items, err := p.layout.Decode(buf)
	if err != nil {
		rec.Err = err
		return rec
	}

	var d *DataRecord
	switch p.format {
	case 8:
		d, err = mapFmt8(items)
	case 4:
		d, err = mapFmt4(items)
	}
	if err != nil {
		rec.Err = err
		return rec
	}
	if d == nil {
		rt := int(items.At(3))
		if p.format == 4 {
			rt = int(items.At(2))
		}
		rec.Err = &UnknownRecordTypeError{Type: rt}
		return rec
	}

	rec.Kind = KindData
	if d.DataType == DataTypeRamp && d.GroundMode == 0 {
		rec.Kind = KindRamp
	}
	rec.Data = d
	return rec
}

func headerRecType(buf []byte) int {
	r := NewBitReader(buf)
	r.Skip(40)
	v, err := r.Uint(32)
	if err != nil {
		return -1
	}
	switch int(v) {
	case recTypeFileID, recTypeTransponder, recTypeComment:
		return int(v)
	}
	return -1
}

func commentText(buf []byte) string {
	text := strings.TrimRight(string(buf[9:]), "\x00 ")
	return strings.TrimSpace(text)
}

// ParseFileID decodes and validates the table 3-1 file identification
// record: record type 10 carrying the "ATDF" marker.
func ParseFileID(buf []byte) (*FileIDRecord, error) {
	items, err := layoutFileID.Decode(buf)
	if err != nil {
		return nil, err
	}
	if rt := items.At(3); rt != recTypeFileID {
		return nil, fmt.Errorf("%w: file identification record type is %d, want %d", ErrBadHeader, rt, recTypeFileID)
	}
	marker := string([]byte{byte(items.At(5)), byte(items.At(6)), byte(items.At(7)), byte(items.At(8))})
	if marker != "ATDF" {
		return nil, fmt.Errorf("%w: marker is %q, want \"ATDF\"", ErrBadHeader, marker)
	}
	return &FileIDRecord{Format: int(items.At(1))}, nil
}

// ParseTransponder decodes and validates the table 3-2 transponder
// record: record type 30 with the measurement span and the spacecraft
// transponder frequency split across two 36-bit words.
func ParseTransponder(buf []byte) (*TransponderRecord, error) {
	items, err := layoutTransponder.Decode(buf)
	if err != nil {
		return nil, err
	}
	if rt := items.At(3); rt != recTypeTransponder {
		return nil, fmt.Errorf("%w: transponder record type is %d, want %d", ErrBadHeader, rt, recTypeTransponder)
	}
	start, err := timeTag(items.At(4), items.At(5), items.At(6), items.At(7), items.At(8), 0)
	if err != nil {
		return nil, fmt.Errorf("%w: start epoch: %v", ErrBadHeader, err)
	}
	end, err := timeTag(items.At(12), items.At(13), items.At(14), items.At(15), items.At(16), 0)
	if err != nil {
		return nil, fmt.Errorf("%w: end epoch: %v", ErrBadHeader, err)
	}
	return &TransponderRecord{
		ScID:  int(items.At(10)),
		Start: start,
		End:   end,
		Freq:  SplitHighLow(items.U(18), items.U(19)),
	}, nil
}

// timeTag assembles a record time tag from its calendar fields, range
// checking each one. Years count from 1900.
func timeTag(year, doy, hr, mn, sec, offsetBits int64) (time.Time, error) {
	reject := func(reason string) (time.Time, error) {
		return time.Time{}, &MalformedFieldError{Field: "time tag", Offset: int(offsetBits), Reason: reason}
	}
	if year < 0 || year > 200 {
		return reject(fmt.Sprintf("year %d out of range", 1900+year))
	}
	if doy < 1 || doy > 366 {
		return reject(fmt.Sprintf("day-of-year %d out of range", doy))
	}
	if hr > 23 {
		return reject(fmt.Sprintf("hour %d out of range", hr))
	}
	if mn > 59 {
		return reject(fmt.Sprintf("minute %d out of range", mn))
	}
	if sec > 60 {
		return reject(fmt.Sprintf("second %d out of range", sec))
	}
	t := time.Date(1900+int(year), 1, 1, int(hr), int(mn), int(sec), 0, time.UTC)
	return t.AddDate(0, 0, int(doy)-1), nil
}

func dnlinkBand8(code int64) Band {
	switch code {
	case 1:
		return BandS
	case 2:
		return BandX
	case 3:
		return BandKa
	}
	return BandNA
}

func uplinkBand8(code int64) Band {
	switch code {
	case 1:
		return BandS
	case 2:
		return BandX
	case 3:
		return BandKa
	case 7:
		return BandS2
	}
	return BandS1
}

func band4(code int64) Band {
	switch code {
	case 1:
		return BandS
	case 2:
		return BandX
	case 3:
		return BandKa
	case 7:
		return BandS2
	}
	return BandKu
}

// mapFmt8 maps decoded SFOC-NAV-2-25 items onto a DataRecord. Returns
// (nil, nil) for record types outside the data set.
func mapFmt8(it Items) (*DataRecord, error) {
	rt := it.At(3)
	if rt != recTypeDataLow && rt != recTypeDataHigh {
		return nil, nil
	}
	tag, err := timeTag(it.At(4), it.At(5), it.At(6), it.At(7), it.At(8), 32)
	if err != nil {
		return nil, err
	}
	d := &DataRecord{
		Format:   8,
		HighRate: rt == recTypeDataHigh,
		TimeTag:  tag,

		Station:      int(it.At(10)),
		DownlinkBand: dnlinkBand8(it.At(11)),
		DataType:     int(it.At(12)),
		Channel:      int(it.At(13)),
		GroundMode:   int(it.At(14)),
		ScID:         int(it.At(15)),
		RangeType:    int(it.At(16)),

		DopplerValid: it.At(19) == 0,
		DopplerBias:  float64(it.At(20)) * 1e3,

		DopplerRcvrType: int(it.At(26)),
		ExciterType:     int(it.At(27)),
		CountTime:       float64(it.At(29)) * 1e-2,

		Range:                SplitHIL(it.U(33), it.U(34), it.U(35)),
		LowestRangeComponent: int(it.At(36)),
		UplinkPhase:          SplitBinary(it.U(37), it.U(38), it.U(39), it.U(40)),
		DopplerRefFreq:       SplitKilo(it.At(43), it.U(44)),

		DopplerResidual: float64(it.At(74)) * 1e-3,
		RangeResidual:   float64(it.At(76)) * 1e-3,
		TurnaroundNum:   int(it.At(77)),
		TurnaroundDen:   int(it.At(78)),
		UplinkBand:      uplinkBand8(it.At(79)),
		ConscanMode:     int(it.At(81)),
		SlippedCycles:   int(it.At(87)),
		DopplerNoise:    float64(it.At(88)) * 1e-3,
		ExciterDelay:    float64(it.At(90)) * 1e-9,
		RcvrDelay:       float64(it.At(91)) * 1e-9,
		RangeValid:      it.At(96) == 0,
		RangeEqupDelay:  float64(it.At(104)) * 1e-2,
		ZCorrection:     float64(it.At(112)) * 1e-11,
		ScDelay:         float64(it.At(113)) * 1e-9,
		RangeNoise:      float64(it.At(114)) * 1e-2,

		RampController: int(it.At(119)),
		RampRate:       SplitKilo(it.At(120), it.U(121)),
		RampStartFreq:  SplitKilo(it.At(123), it.U(125)),
		XmtrRefFreq:    SplitKilo(it.At(140), it.U(141)),
	}
	// The ten count words each split as high/intermediate/low parts.
	counts := [10][3]int{
		{30, 31, 32}, {46, 47, 48}, {49, 50, 51}, {52, 53, 54}, {55, 56, 57},
		{58, 59, 60}, {61, 62, 63}, {64, 65, 66}, {67, 68, 69}, {70, 71, 72},
	}
	for i, c := range counts {
		d.DopplerCounts[i] = SplitHIL(it.U(c[0]), it.U(c[1]), it.U(c[2]))
	}
	return d, nil
}

// mapFmt4 maps decoded TRK-2-25 (36-bit-word era) items onto a
// DataRecord. Several calibration words do not exist in this era and
// stay zero.
func mapFmt4(it Items) (*DataRecord, error) {
	rt := it.At(2)
	if rt != recTypeDataLow && rt != recTypeDataHigh {
		return nil, nil
	}
	tag, err := timeTag(it.At(3), it.At(4), it.At(5), it.At(6), it.At(7), 72)
	if err != nil {
		return nil, err
	}
	d := &DataRecord{
		Format:   4,
		HighRate: rt == recTypeDataHigh,
		TimeTag:  tag,

		Station:      int(it.At(10)),
		DownlinkBand: band4(it.At(11)),
		DataType:     int(it.At(12)),
		GroundMode:   int(it.At(13)),
		RangeType:    int(it.At(14)),
		ScID:         int(it.At(8)),
		Channel:      int(it.At(69)),

		DopplerValid: it.At(17) == 0,
		DopplerBias:  float64(it.At(20)) * 1e6,

		DopplerRcvrType: int(it.At(71)),
		ExciterType:     int(it.At(28)),
		CountTime:       float64(it.At(30)) * 1e-2,

		Range:                SplitHighLow(it.U(33), it.U(34)),
		LowestRangeComponent: int(it.At(35)),
		DopplerRefFreq:       float64(it.At(40)) / 1e1,

		DopplerResidual: float64(it.At(60)) * 1e-3,
		RangeResidual:   float64(it.At(61)),
		TurnaroundNum:   int(it.At(62)),
		TurnaroundDen:   int(it.At(63)),
		UplinkBand:      band4(it.At(64)),
		ConscanMode:     int(it.At(66)),
		SlippedCycles:   int(it.At(76)),
		DopplerNoise:    float64(it.At(77)) * 1e-3,
		RangeValid:      it.At(85) == 0,
		ZCorrection:     float64(it.At(104)) * 1e-11,
		ScDelay:         float64(it.At(105)) * 1e-9,
		RangeNoise:      float64(it.At(106)) * 1e-2,

		RampController: int(it.At(111)),
		RampRate:       float64(it.At(112)) * 1e-6,
		XmtrRefFreq:    float64(it.At(116)) / 1e1,
	}
	if hp := it.At(113); hp != 0 {
		d.RampStartFreq = float64(hp)*1e1 + float64(it.At(114))*1e-6
	}
	counts := [10][2]int{
		{31, 32}, {42, 43}, {44, 45}, {46, 47}, {48, 49},
		{50, 51}, {52, 53}, {54, 55}, {56, 57}, {58, 59},
	}
	for i, c := range counts {
		d.DopplerCounts[i] = SplitHighLow(it.U(c[0]), it.U(c[1]))
	}
	return d, nil
}
