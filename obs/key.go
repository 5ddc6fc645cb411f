package obs

import (
	"fmt"
	"time"

	"github.com/deepspacetools/atdftools/atdf"
)

// ChannelKey identifies one independent observable stream. Counter state
// is tracked per key and never mixed across keys.
type ChannelKey struct {
	Station  int
	ScID     int
	Uplink   atdf.Band
	Downlink atdf.Band
	Channel  int
	DataType int
}

func keyOf(d *atdf.DataRecord) ChannelKey {
	return ChannelKey{
		Station:  d.Station,
		ScID:     d.ScID,
		Uplink:   d.UplinkBand,
		Downlink: d.DownlinkBand,
		Channel:  d.Channel,
		DataType: d.DataType,
	}
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("DSS %d/sc %d/%s-%s/ch %d", k.Station, k.ScID, k.Uplink, k.Downlink, k.Channel)
}

// Flag annotates the quality of an observable interval.
type Flag uint8

const (
	FlagGap    Flag = 1 << iota // timestamp discontinuity across the interval
	FlagWrap                    // counter wraparound corrected
	FlagDesync                  // counter discontinuity beyond the detectable window
)

// Good reports whether the interval carries no quality degradation.
func (f Flag) Good() bool { return f == 0 }

// Degraded reports whether the interval should be suppressed unless
// degraded rows were requested.
func (f Flag) Degraded() bool { return f&(FlagGap|FlagDesync) != 0 }

func (f Flag) String() string {
	if f == 0 {
		return "good"
	}
	s := ""
	if f&FlagGap != 0 {
		s += "+gap"
	}
	if f&FlagWrap != 0 {
		s += "+wrap"
	}
	if f&FlagDesync != 0 {
		s += "+desync"
	}
	return s[1:]
}

// Observable is one converted output sample: a Doppler frequency shift
// in Hz or a range delay in range units, with the ancillary context the
// measurement table carries.
type Observable struct {
	Time     time.Time // midpoint of the count interval for Doppler
	Key      ChannelKey
	TypeName string
	Way      int

	Value     float64 // Hz for Doppler, RU for range
	RefFreq   float64 // Hz
	CountTime float64 // s
	RangeLC   int

	Xmtr string
	Rcvr string

	ExciterBand atdf.Band
	XmtrDelay   float64 // ns
	RcvrDelay   float64 // ns
	ScDelay     float64 // ns

	Flags Flag

	// Provenance: ordinals of the source records bounding the interval.
	StartRecord int
	EndRecord   int
}
