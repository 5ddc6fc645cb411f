package obs

import (
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/deepspacetools/atdftools/atdf"
)

// RampInterval is one uplink transmitter ramp: a start frequency and a
// constant sweep rate holding between two epochs.
type RampInterval struct {
	Start   time.Time
	End     time.Time
	Station int
	Band    atdf.Band
	Freq    float64 // sky-level start frequency, Hz
	Rate    float64 // Hz/s
}

type rampKey struct {
	Station  int
	Uplink   atdf.Band
	Downlink atdf.Band
}

type openRamp struct {
	start time.Time
	freq  float64
	rate  float64
}

// RampAssembler pairs consecutive ramp records per transmitter into
// closed intervals. Each ramp record opens a segment that the next one
// for the same transmitter closes.
type RampAssembler struct {
	open map[rampKey]*openRamp
}

func NewRampAssembler() *RampAssembler {
	return &RampAssembler{open: make(map[rampKey]*openRamp)}
}

// rampSkyFreq lifts a ramp start frequency to sky level for the uplink
// band. The multiplier is 1 when the frequency is recorded at sky level
// already.
func rampSkyFreq(d *atdf.DataRecord) (freq, fac float64, ok bool) {
	freq = d.RampStartFreq
	if skyBand(freq) == d.UplinkBand && d.UplinkBand != "" {
		return freq, 1, true
	}
	fac = exciterMultiple(freq)
	if fac == 0 {
		log.Warnf("Invalid ramp start frequency %.3f MHz at %s; expected near %.0f MHz",
			freq/1e6, d.TimeTag.UTC(), exciterLevel/1e6)
		return 0, 0, false
	}
	freq /= fac
	switch d.UplinkBand {
	case atdf.BandS:
		return 96.0 * freq, fac, true
	case atdf.BandX:
		return 32.0*freq + 6.5e9, fac, true
	}
	return freq, fac, true
}

// rampSkyRate scales the recorded sweep rate to sky level when the
// frequency was recorded at the exciter level.
func rampSkyRate(rate float64, band atdf.Band, skyLevel bool) float64 {
	if skyLevel {
		return rate
	}
	switch band {
	case atdf.BandS:
		return 96.0 * rate
	case atdf.BandX:
		return 32.0 * rate
	}
	return rate
}

// Process consumes one ramp record. It returns the interval the record
// closes, if any.
func (a *RampAssembler) Process(d *atdf.DataRecord) (RampInterval, bool) {
	if d.UplinkBand == atdf.BandKa {
		log.Warnf("Ka uplink is not supported. Time tag: %s, station: DSS %d", d.TimeTag.UTC(), d.Station)
		return RampInterval{}, false
	}
	skyLevel := skyBand(d.RampStartFreq) == d.UplinkBand && d.UplinkBand != ""
	freq, fac, ok := rampSkyFreq(d)
	if !ok {
		return RampInterval{}, false
	}

	key := rampKey{Station: d.Station, Uplink: d.UplinkBand, Downlink: d.DownlinkBand}
	cur := &openRamp{
		start: d.TimeTag,
		freq:  freq,
		rate:  rampSkyRate(d.RampRate/fac, d.UplinkBand, skyLevel),
	}
	prev := a.open[key]
	a.open[key] = cur
	if prev == nil {
		return RampInterval{}, false
	}
	return RampInterval{
		Start:   prev.start,
		End:     d.TimeTag,
		Station: key.Station,
		Band:    key.Uplink,
		Freq:    prev.freq,
		Rate:    prev.rate,
	}, true
}

// Finish closes the segments still open at end of stream against the
// given end epoch and returns them sorted by start time.
func (a *RampAssembler) Finish(end time.Time) []RampInterval {
	var out []RampInterval
	for key, o := range a.open {
		if end.After(o.start) {
			out = append(out, RampInterval{
				Start:   o.start,
				End:     end,
				Station: key.Station,
				Band:    key.Uplink,
				Freq:    o.freq,
				Rate:    o.rate,
			})
		}
		delete(a.open, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
