package atdf

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

// baseItems builds the item set of a plausible 2-way Doppler sample in
// the SFOC era: DSS 14, X/X band, 60 s count time.
func baseItems() map[int]int64 {
	return map[int]int64{
		1:   8,  // format
		3:   90, // low-rate data record
		4:   97, 5: 100, 6: 12, 7: 30, 8: 15,
		10:  14, // station
		11:  2,  // X down
		12:  2,  // Doppler
		13:  1,  // channel
		14:  2,  // 2-way
		15:  94, // spacecraft
		19:  0,  // Doppler valid
		20:  -2, // bias, kHz units
		29:  6000, // count time, 10 ms units
		30:  0, 31: 100, 32: 0, // counter: 1000 cycles
		33:  1, 34: 2, 35: 3,
		36:  6,
		43:  22000, 44: 0, // reference frequency, 22 MHz
		77:  880, 78: 749,
		79:  2, // X up
		90:  100, 91: 200, // station delays, ns
		96:  0, // range valid
		104: 1234,
		112: 5,
		113: 250,
	}
}

func encodeFmt8(t *testing.T, items map[int]int64) []byte {
	t.Helper()
	buf, err := layoutFmt8.Encode(items)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return buf
}

func TestParseDataRecordFmt8(t *testing.T) {
	p, err := NewParser(8)
	if err != nil {
		t.Fatalf("NewParser error: %v", err)
	}
	rec := p.Parse(encodeFmt8(t, baseItems()), 2, 2*RecordSize)
	if rec.Kind != KindData {
		t.Fatalf("Kind = %s (err %v), want data", rec.Kind, rec.Err)
	}
	d := rec.Data

	want := time.Date(1997, 4, 10, 12, 30, 15, 0, time.UTC)
	if !d.TimeTag.Equal(want) {
		t.Errorf("TimeTag = %s, want %s", d.TimeTag, want)
	}
	if d.Station != 14 || d.ScID != 94 || d.Channel != 1 {
		t.Errorf("identity = DSS %d/sc %d/ch %d, want DSS 14/sc 94/ch 1", d.Station, d.ScID, d.Channel)
	}
	if d.UplinkBand != BandX || d.DownlinkBand != BandX {
		t.Errorf("bands = %s/%s, want X/X", d.UplinkBand, d.DownlinkBand)
	}
	if !d.DopplerValid || !d.RangeValid {
		t.Errorf("validity = %v/%v, want true/true", d.DopplerValid, d.RangeValid)
	}
	if d.CountTime != 60 {
		t.Errorf("CountTime = %v, want 60", d.CountTime)
	}
	if d.DopplerCount() != 1000 {
		t.Errorf("DopplerCount = %v, want 1000", d.DopplerCount())
	}
	if d.DopplerBias != -2000 {
		t.Errorf("DopplerBias = %v, want -2000", d.DopplerBias)
	}
	if d.DopplerRefFreq != 22e6 {
		t.Errorf("DopplerRefFreq = %v, want 22e6", d.DopplerRefFreq)
	}
	if wantRange := 1e8 + 20 + 3e-6; math.Abs(d.Range-wantRange) > 1e-9 {
		t.Errorf("Range = %v, want %v", d.Range, wantRange)
	}
	if d.TurnaroundNum != 880 || d.TurnaroundDen != 749 {
		t.Errorf("turnaround = %d/%d, want 880/749", d.TurnaroundNum, d.TurnaroundDen)
	}
	if math.Abs(d.ExciterDelay-100e-9) > 1e-15 || math.Abs(d.RcvrDelay-200e-9) > 1e-15 || math.Abs(d.ScDelay-250e-9) > 1e-15 {
		t.Errorf("delays = %v/%v/%v, want 100n/200n/250n", d.ExciterDelay, d.RcvrDelay, d.ScDelay)
	}
	if d.Way() != 2 {
		t.Errorf("Way = %d, want 2", d.Way())
	}
}

func TestParseHighRateRecord(t *testing.T) {
	items := baseItems()
	items[3] = 91
	p, _ := NewParser(8)
	rec := p.Parse(encodeFmt8(t, items), 2, 0)
	if rec.Kind != KindData || !rec.Data.HighRate {
		t.Fatalf("Kind = %s, HighRate = %v, want high-rate data", rec.Kind, rec.Data != nil && rec.Data.HighRate)
	}
}

func TestParseRampRecord(t *testing.T) {
	items := baseItems()
	items[12] = DataTypeRamp
	items[14] = 0
	items[123] = 22000
	items[125] = 0
	items[120] = 1
	items[121] = 0
	p, _ := NewParser(8)
	rec := p.Parse(encodeFmt8(t, items), 2, 0)
	if rec.Kind != KindRamp {
		t.Fatalf("Kind = %s (err %v), want ramp", rec.Kind, rec.Err)
	}
	if rec.Data.RampStartFreq != 22e6 {
		t.Errorf("RampStartFreq = %v, want 22e6", rec.Data.RampStartFreq)
	}
	if rec.Data.RampRate != 1000 {
		t.Errorf("RampRate = %v, want 1000", rec.Data.RampRate)
	}
}

func TestParseMalformedTimeTag(t *testing.T) {
	items := baseItems()
	items[5] = 400 // day of year out of range
	p, _ := NewParser(8)
	rec := p.Parse(encodeFmt8(t, items), 2, 0)
	if rec.Kind != KindUnknown {
		t.Fatalf("Kind = %s, want unknown", rec.Kind)
	}
	var mf *MalformedFieldError
	if !errors.As(rec.Err, &mf) {
		t.Fatalf("error is %T (%v), want *MalformedFieldError", rec.Err, rec.Err)
	}
}

func TestParseUnknownRecordType(t *testing.T) {
	items := baseItems()
	items[3] = 50
	p, _ := NewParser(8)
	rec := p.Parse(encodeFmt8(t, items), 2, 0)
	if rec.Kind != KindUnknown {
		t.Fatalf("Kind = %s, want unknown", rec.Kind)
	}
	var ur *UnknownRecordTypeError
	if !errors.As(rec.Err, &ur) || ur.Type != 50 {
		t.Fatalf("error = %v, want unknown record type 50", rec.Err)
	}
}

func TestParseCommentRecord(t *testing.T) {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint32(buf[5:9], recTypeComment)
	copy(buf[9:], "PASS 042 TRACK CONFIG NOMINAL   ")
	p, _ := NewParser(8)
	rec := p.Parse(buf, 2, 0)
	if rec.Kind != KindComment {
		t.Fatalf("Kind = %s, want comment", rec.Kind)
	}
	if rec.Comment != "PASS 042 TRACK CONFIG NOMINAL" {
		t.Fatalf("Comment = %q", rec.Comment)
	}
}

func TestParseFillerRecord(t *testing.T) {
	p, _ := NewParser(8)
	rec := p.Parse(make([]byte, RecordSize), 2, 0)
	if rec.Kind != KindFiller {
		t.Fatalf("Kind = %s, want filler", rec.Kind)
	}
}

func fileIDBuf(t *testing.T, marker string) []byte {
	t.Helper()
	items := map[int]int64{1: 8, 3: recTypeFileID}
	for i := 0; i < 4; i++ {
		items[5+i] = int64(marker[i])
	}
	buf, err := layoutFileID.Encode(items)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return buf
}

func transponderBuf(t *testing.T) []byte {
	t.Helper()
	buf, err := layoutTransponder.Encode(map[int]int64{
		1: 8, 3: recTypeTransponder,
		4: 97, 5: 100, 6: 0, 7: 0, 8: 0,
		10: 94,
		12: 97, 13: 120, 14: 23, 15: 59, 16: 59,
		18: 880012, 19: 345,
	})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return buf
}

func TestParseFileID(t *testing.T) {
	fid, err := ParseFileID(fileIDBuf(t, "ATDF"))
	if err != nil {
		t.Fatalf("ParseFileID error: %v", err)
	}
	if fid.Format != 8 {
		t.Fatalf("Format = %d, want 8", fid.Format)
	}

	if _, err := ParseFileID(fileIDBuf(t, "JUNK")); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("bad marker error = %v, want ErrBadHeader", err)
	}
}

func TestParseTransponder(t *testing.T) {
	tr, err := ParseTransponder(transponderBuf(t))
	if err != nil {
		t.Fatalf("ParseTransponder error: %v", err)
	}
	if tr.ScID != 94 {
		t.Errorf("ScID = %d, want 94", tr.ScID)
	}
	wantStart := time.Date(1997, 4, 10, 0, 0, 0, 0, time.UTC)
	if !tr.Start.Equal(wantStart) {
		t.Errorf("Start = %s, want %s", tr.Start, wantStart)
	}
	wantEnd := time.Date(1997, 4, 30, 23, 59, 59, 0, time.UTC)
	if !tr.End.Equal(wantEnd) {
		t.Errorf("End = %s, want %s", tr.End, wantEnd)
	}
	if want := 880012e4 + 0.345; math.Abs(tr.Freq-want) > 1e-6 {
		t.Errorf("Freq = %v, want %v", tr.Freq, want)
	}
}

func TestParseDispatchesHeaderRecords(t *testing.T) {
	p, _ := NewParser(8)
	if rec := p.Parse(fileIDBuf(t, "ATDF"), 0, 0); rec.Kind != KindFileID {
		t.Errorf("file id record parsed as %s", rec.Kind)
	}
	if rec := p.Parse(transponderBuf(t), 1, 0); rec.Kind != KindTransponder {
		t.Errorf("transponder record parsed as %s", rec.Kind)
	}
}
