package atdf

import (
	"time"
)

// RecordKind classifies a logical record after parsing.
type RecordKind uint8

const (
	KindUnknown     RecordKind = iota // unreadable or unrecognized record
	KindFileID                        // table 3-1 file identification
	KindTransponder                   // table 3-2 transponder parameters
	KindComment                       // free-text annotation record
	KindData                          // table 3-3 tracking sample
	KindRamp                          // table 3-3 record carrying programmed ramp info
	KindFiller                        // trailing pad record
)

func (k RecordKind) String() string {
	switch k {
	case KindFileID:
		return "file-id"
	case KindTransponder:
		return "transponder"
	case KindComment:
		return "comment"
	case KindData:
		return "data"
	case KindRamp:
		return "ramp"
	case KindFiller:
		return "filler"
	}
	return "unknown"
}

// Record type discriminator values.
const (
	recTypeFileID      = 10
	recTypeComment     = 20
	recTypeTransponder = 30
	recTypeDataLow     = 90
	recTypeDataHigh    = 91
)

// Sample data types within a table 3-3 record.
const (
	DataTypeDoppler1Way = 1
	DataTypeDoppler     = 2 // 2- and 3-way, split by ground mode
	DataTypeRange       = 5
	DataTypeRamp        = 6
)

// Band is a frequency band designator as the format encodes it.
type Band string

const (
	BandNA Band = "NA"
	BandS  Band = "S"
	BandX  Band = "X"
	BandKa Band = "Ka"
	BandKu Band = "Ku"
	BandL  Band = "L"
	BandC  Band = "C"
	BandS1 Band = "S1"
	BandS2 Band = "S2"
)

// Record is the tagged result of classifying and parsing one raw record.
// Exactly one of the variant fields is populated for its kind. Records
// are immutable once parsed.
type Record struct {
	Kind   RecordKind
	Index  int   // record ordinal in the file
	Offset int64 // byte offset of the raw record
	Err    error // decode failure, set for KindUnknown

	FileID      *FileIDRecord
	Transponder *TransponderRecord
	Comment     string
	Data        *DataRecord
}

// FileIDRecord is the decoded table 3-1 file identification record.
type FileIDRecord struct {
	Format int
}

// TransponderRecord is the decoded table 3-2 transponder record.
type TransponderRecord struct {
	ScID  int
	Start time.Time
	End   time.Time
	Freq  float64 // spacecraft transponder frequency, Hz
}

// DataRecord is the decoded table 3-3 tracking sample. Fields follow the
// interface document's units: Hz for frequencies, seconds for delays
// unless noted, range units (RU) for ranging words.
type DataRecord struct {
	Format   int // 4 or 8
	HighRate bool
	TimeTag  time.Time

	Station      int
	ScID         int
	DownlinkBand Band
	UplinkBand   Band
	DataType     int
	GroundMode   int
	Channel      int
	RangeType    int

	DopplerValid bool
	RangeValid   bool

	CountTime     float64     // count (integration) interval, s
	DopplerCounts [10]float64 // cycles; only [0] is meaningful at low rate
	DopplerBias   float64     // Hz
	Range         float64     // RU or ns per range type
	LowestRangeComponent int
	UplinkPhase   float64 // cycles

	DopplerRefFreq  float64 // Hz
	DopplerRcvrType int
	ExciterType     int
	XmtrRefFreq     float64 // Hz

	TurnaroundNum int
	TurnaroundDen int

	ConscanMode     int
	SlippedCycles   int
	DopplerNoise    float64 // Hz
	DopplerResidual float64 // Hz
	RangeResidual   float64 // RU
	RangeNoise      float64 // RU

	ExciterDelay   float64 // s
	RcvrDelay      float64 // s
	RangeEqupDelay float64 // RU
	ZCorrection    float64 // s
	ScDelay        float64 // s

	RampController int
	RampRate       float64 // Hz/s
	RampStartFreq  float64 // Hz
}

// DopplerCount is the primary counter sample of the record.
func (d *DataRecord) DopplerCount() float64 { return d.DopplerCounts[0] }

// Way reports how many legs the observable spans (1-, 2- or 3-way),
// derived from the ground mode, or 0 when the record carries neither
// Doppler nor range data.
func (d *DataRecord) Way() int {
	switch d.DataType {
	case DataTypeDoppler1Way, DataTypeDoppler:
		if d.GroundMode >= 1 && d.GroundMode <= 3 {
			return d.GroundMode
		}
	case DataTypeRange:
		switch d.GroundMode {
		case 5:
			return 1
		case 6:
			return 2
		}
	}
	return 0
}
