package atdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// Header carries the file-level context decoded from the two leading
// catalog records.
type Header struct {
	Format          int // 4 or 8, sniffed from the first data record
	ScID            int
	Start           time.Time
	End             time.Time
	TransponderFreq float64 // Hz
}

// Stats counts what the reader has seen so far. Record-level problems
// are counted, never fatal.
type Stats struct {
	Records   int
	Data      int
	HighRate  int
	Ramps     int
	Comments  int
	Filler    int
	Malformed int
	Unknown   int
	Truncated bool
}

// Reader walks the record stream of one ATDF file in file order.
type Reader struct {
	path    string
	file    *os.File
	zr      *zstd.Decoder
	src     io.Reader
	hdr     Header
	parser  *Parser
	idx     int
	off     int64
	peeked  []byte
	pending []*Record // expanded high-rate samples
	stats   Stats
	done    bool
}

// Open reads and validates the file identification and transponder
// records, sniffs the data-record format and positions the reader at the
// first data record. A .zst suffix selects transparent decompression.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{path: path, file: f, src: f}
	if strings.HasSuffix(path, ".zst") {
		log.Debugf("Input %s is zstd compressed...decompressing", path)
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.zr = zr
		r.src = zr
	}
	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	buf := make([]byte, RecordSize)
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return fmt.Errorf("%w: file identification record: %v", ErrBadHeader, err)
	}
	fid, err := ParseFileID(buf)
	if err != nil {
		return err
	}
	log.Debugf("File identification record: format %d", fid.Format)

	if _, err := io.ReadFull(r.src, buf); err != nil {
		return fmt.Errorf("%w: transponder record: %v", ErrBadHeader, err)
	}
	tr, err := ParseTransponder(buf)
	if err != nil {
		return err
	}

	// The format discriminator of the catalog records is not reliable
	// across eras; sniff it from the first data record as the interface
	// document prescribes.
	first := make([]byte, RecordSize)
	_, err = io.ReadFull(r.src, first)
	switch {
	case err == io.EOF:
		r.done = true
	case err == io.ErrUnexpectedEOF:
		r.stats.Truncated = true
		r.done = true
	case err != nil:
		return err
	default:
		format := FormatOf(first)
		p, perr := NewParser(format)
		if perr != nil {
			return fmt.Errorf("%w: %v", ErrBadHeader, perr)
		}
		r.parser = p
		r.peeked = first
	}

	r.hdr = Header{
		ScID:            tr.ScID,
		Start:           tr.Start,
		End:             tr.End,
		TransponderFreq: tr.Freq,
	}
	if r.parser != nil {
		r.hdr.Format = r.parser.Format()
	}
	r.idx = 2
	r.off = 2 * RecordSize
	return nil
}

func (r *Reader) Header() Header { return r.hdr }

func (r *Reader) Stats() Stats { return r.stats }

// Size reports the input size in bytes, or 0 when unknown (compressed).
func (r *Reader) Size() int64 {
	if r.zr != nil {
		return 0
	}
	if fi, err := r.file.Stat(); err == nil {
		return fi.Size()
	}
	return 0
}

// Next returns the next parsed record in file order, expanding high-rate
// data records into their ten 0.1 s samples. Returns io.EOF at end of
// stream; a truncated trailing record is counted, not fatal.
func (r *Reader) Next() (*Record, error) {
	if len(r.pending) > 0 {
		rec := r.pending[0]
		r.pending = r.pending[1:]
		return rec, nil
	}
	for {
		raw, err := r.nextRaw()
		if err != nil {
			return nil, err
		}
		rec := r.parser.Parse(raw, r.idx, r.off-RecordSize)
		r.count(rec)
		if rec.Kind == KindData && rec.Data.HighRate && rec.Data.DataType == DataTypeDoppler1Way {
			r.expandHighRate(rec)
			continue
		}
		return rec, nil
	}
}

func (r *Reader) nextRaw() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	if r.parser == nil {
		return nil, io.EOF
	}
	var raw []byte
	if r.peeked != nil {
		raw = r.peeked
		r.peeked = nil
	} else {
		raw = make([]byte, RecordSize)
		_, err := io.ReadFull(r.src, raw)
		if err == io.EOF {
			r.done = true
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			log.Warnf("Input %s ends mid-record; keeping the readable prefix", r.path)
			r.stats.Truncated = true
			r.done = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
	}
	r.idx++
	r.off += RecordSize
	return raw, nil
}

func (r *Reader) count(rec *Record) {
	r.stats.Records++
	switch rec.Kind {
	case KindData:
		r.stats.Data++
		if rec.Data.HighRate {
			r.stats.HighRate++
		}
	case KindRamp:
		r.stats.Ramps++
	case KindComment:
		r.stats.Comments++
	case KindFiller:
		r.stats.Filler++
	case KindUnknown:
		var mf *MalformedFieldError
		if errors.As(rec.Err, &mf) {
			r.stats.Malformed++
		} else {
			r.stats.Unknown++
		}
		log.Debugf("Record %d skipped: %v", rec.Index, rec.Err)
	}
}

// expandHighRate splits a type 91 record into ten 0.1 s samples, one per
// count word, each tagged a tenth of a second apart.
func (r *Reader) expandHighRate(rec *Record) {
	base := *rec.Data
	for i := 0; i < 10; i++ {
		d := base
		d.HighRate = false
		d.TimeTag = base.TimeTag.Add(time.Duration(i) * 100 * time.Millisecond)
		d.CountTime = 0.1
		d.DopplerCounts = [10]float64{base.DopplerCounts[i]}
		r.pending = append(r.pending, &Record{
			Kind:   KindData,
			Index:  rec.Index,
			Offset: rec.Offset,
			Data:   &d,
		})
	}
}

func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
