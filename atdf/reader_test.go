package atdf

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

// writeTestFile assembles a synthetic ATDF file from raw records.
func writeTestFile(t *testing.T, name string, recs ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	var buf []byte
	for _, r := range recs {
		buf = append(buf, r...)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func dataRecAt(t *testing.T, hh, mm, ss int64, count float64) []byte {
	t.Helper()
	items := baseItems()
	items[6], items[7], items[8] = hh, mm, ss
	items[31] = int64(count / 10) // intermediate part carries 10-cycle units
	return encodeFmt8(t, items)
}

func TestReaderWalksFile(t *testing.T) {
	path := writeTestFile(t, "test.tdf",
		fileIDBuf(t, "ATDF"),
		transponderBuf(t),
		dataRecAt(t, 12, 30, 15, 1000),
		dataRecAt(t, 12, 31, 15, 61000),
		make([]byte, RecordSize), // trailing filler
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer r.Close()

	hdr := r.Header()
	if hdr.Format != 8 {
		t.Errorf("Format = %d, want 8", hdr.Format)
	}
	if hdr.ScID != 94 {
		t.Errorf("ScID = %d, want 94", hdr.ScID)
	}
	if want := 880012e4 + 0.345; math.Abs(hdr.TransponderFreq-want) > 1e-6 {
		t.Errorf("TransponderFreq = %v, want %v", hdr.TransponderFreq, want)
	}
	if r.Size() != 5*RecordSize {
		t.Errorf("Size = %d, want %d", r.Size(), 5*RecordSize)
	}

	var kinds []RecordKind
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		kinds = append(kinds, rec.Kind)
	}
	want := []RecordKind{KindData, KindData, KindFiller}
	if len(kinds) != len(want) {
		t.Fatalf("read %d records (%v), want %d", len(kinds), kinds, len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("record %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}

	stats := r.Stats()
	if stats.Records != 3 || stats.Data != 2 || stats.Filler != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Truncated {
		t.Errorf("unexpected truncation flag")
	}
}

func TestReaderExpandsHighRate(t *testing.T) {
	items := baseItems()
	items[3] = 91
	items[12] = DataTypeDoppler1Way
	// ten counter words, 10 cycles apart
	words := [][3]int{
		{30, 31, 32}, {46, 47, 48}, {49, 50, 51}, {52, 53, 54}, {55, 56, 57},
		{58, 59, 60}, {61, 62, 63}, {64, 65, 66}, {67, 68, 69}, {70, 71, 72},
	}
	for i, w := range words {
		items[w[1]] = int64(i + 1)
	}

	path := writeTestFile(t, "hr.tdf",
		fileIDBuf(t, "ATDF"),
		transponderBuf(t),
		encodeFmt8(t, items),
	)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer r.Close()

	base := time.Date(1997, 4, 10, 12, 30, 15, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next error at sample %d: %v", i, err)
		}
		if rec.Kind != KindData || rec.Data.HighRate {
			t.Fatalf("sample %d kind = %s, HighRate = %v", i, rec.Kind, rec.Data != nil && rec.Data.HighRate)
		}
		wantTime := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if !rec.Data.TimeTag.Equal(wantTime) {
			t.Errorf("sample %d time = %s, want %s", i, rec.Data.TimeTag, wantTime)
		}
		if rec.Data.CountTime != 0.1 {
			t.Errorf("sample %d count time = %v, want 0.1", i, rec.Data.CountTime)
		}
		if want := float64((i + 1) * 10); rec.Data.DopplerCount() != want {
			t.Errorf("sample %d count = %v, want %v", i, rec.Data.DopplerCount(), want)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF after expansion, got %v", err)
	}
	if r.Stats().HighRate != 1 {
		t.Errorf("HighRate stat = %d, want 1", r.Stats().HighRate)
	}
}

func TestReaderZstdInput(t *testing.T) {
	raw := append(append(append([]byte{}, fileIDBuf(t, "ATDF")...), transponderBuf(t)...), dataRecAt(t, 12, 30, 15, 1000)...)

	path := filepath.Join(t.TempDir(), "test.tdf.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd.NewWriter error: %v", err)
	}
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer r.Close()

	if r.Size() != 0 {
		t.Errorf("Size = %d, want 0 for compressed input", r.Size())
	}
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if rec.Kind != KindData || rec.Data.DopplerCount() != 1000 {
		t.Fatalf("record = %s count %v", rec.Kind, rec.Data.DopplerCount())
	}
}

func TestReaderTruncatedTail(t *testing.T) {
	path := writeTestFile(t, "trunc.tdf",
		fileIDBuf(t, "ATDF"),
		transponderBuf(t),
		dataRecAt(t, 12, 30, 15, 1000),
		make([]byte, 100), // partial record
	)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer r.Close()

	n := 0
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		n++
	}
	if n != 1 {
		t.Errorf("read %d records, want 1", n)
	}
	if !r.Stats().Truncated {
		t.Errorf("expected truncation flag")
	}
}

func TestOpenRejectsBadHeader(t *testing.T) {
	path := writeTestFile(t, "junk.tdf", fileIDBuf(t, "JUNK"), transponderBuf(t))
	if _, err := Open(path); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("Open error = %v, want ErrBadHeader", err)
	}

	short := writeTestFile(t, "short.tdf", make([]byte, 50))
	if _, err := Open(short); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("Open error = %v, want ErrBadHeader", err)
	}
}
