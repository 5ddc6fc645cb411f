package obs

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/deepspacetools/atdftools/atdf"
)

// Converter turns reconstructed counter intervals and range words into
// calibrated observables using the spacecraft transponder frequency from
// the file header.
type Converter struct {
	TransponderFreq float64 // Hz
}

func typeName(dataType, way int) string {
	if dataType == atdf.DataTypeRange {
		return fmt.Sprintf("%d-Way-Range", way)
	}
	return fmt.Sprintf("%d-Way-Doppler", way)
}

func dopplerWay(d *atdf.DataRecord) int {
	if d.DataType == atdf.DataTypeDoppler1Way {
		return 1
	}
	if w := d.Way(); w != 0 {
		return w
	}
	return 2
}

func rangeWay(d *atdf.DataRecord) int {
	if w := d.Way(); w != 0 {
		return w
	}
	return 2
}

// turnaroundRatio prefers the ratio recorded in the sample and falls
// back to the nominal Moyer value for the band pair.
func turnaroundRatio(d *atdf.DataRecord) (float64, bool) {
	if d.TurnaroundNum != 0 && d.TurnaroundDen != 0 {
		return float64(d.TurnaroundNum) / float64(d.TurnaroundDen), true
	}
	return turnaround(d.UplinkBand, d.DownlinkBand)
}

// dopplerRefFreq resolves the recorded reference frequency to sky level
// for the given band, per Moyer section 13.2.1. It returns the
// turnaround ratio to apply alongside the sky frequency.
func (c *Converter) dopplerRefFreq(d *atdf.DataRecord, band atdf.Band, way int) (m2, ref float64, ok bool) {
	freq := d.DopplerRefFreq
	ul := d.UplinkBand
	dl := d.DownlinkBand

	if skyBand(freq) == band && band != "" {
		m2, _ = turnaround(ul, dl)
		return m2, freq, true
	}

	fac := exciterMultiple(freq)
	if fac == 0 {
		log.Warnf("Invalid reference frequency %.3f MHz at %s; expected near %.0f MHz. Skipping record",
			freq/1e6, d.TimeTag.UTC(), exciterLevel/1e6)
		return 0, 0, false
	}
	freq /= fac

	// One-way records carry no real uplink; infer the synthesizer chain
	// from the frequency itself.
	if way == 1 {
		if freq > exciterLevel {
			ul = atdf.BandS
		} else {
			ul = dl
		}
	}

	ref, ok = skyFrequency(freq, ul, d.Station, d.DopplerRcvrType)
	if !ok {
		log.Warnf("Cannot lift %s-band reference frequency to sky level at %s (DSS %d)",
			ul, d.TimeTag.UTC(), d.Station)
		return 0, 0, false
	}
	m2, _ = turnaround(ul, dl)
	return m2, ref, true
}

// Doppler converts one closed counter interval into a frequency-shift
// observable (Moyer equation 13-26). raw is the wrap-corrected counter
// delta over the interval, dt the actual interval length in seconds and
// ct the nominal count time reported with the row.
func (c *Converter) Doppler(ref, cur *atdf.DataRecord, key ChannelKey, raw, ct, dt float64, flags Flag, startIdx, endIdx int) (Observable, bool) {
	if cur.UplinkBand == atdf.BandKa {
		log.Warnf("Ka uplink is not supported. Time tag: %s, station: DSS %d", cur.TimeTag.UTC(), cur.Station)
		return Observable{}, false
	}

	deltaNTc := raw / dt
	if deltaNTc == 0 {
		return Observable{}, false
	}

	way := dopplerWay(cur)
	ratio, ok := turnaroundRatio(cur)
	if !ok {
		log.Warnf("No turnaround ratio for %s-%s at %s; skipping record", cur.UplinkBand, cur.DownlinkBand, cur.TimeTag.UTC())
		return Observable{}, false
	}
	exciterBand := exciterBandOf(ratio)

	_, refFreq, ok := c.dopplerRefFreq(cur, exciterBand, way)
	if !ok {
		return Observable{}, false
	}

	// Frequency bias, Moyer equation 13-28. One-way data is biased
	// against the spacecraft oscillator instead of the uplink chain.
	c4 := cur.DopplerBias
	var fBias float64
	ulOut := key.Uplink
	if way == 1 {
		m2, skyRef, ok := c.dopplerRefFreq(cur, cur.DownlinkBand, way)
		if !ok {
			return Observable{}, false
		}
		c2, _ := downConversion(cur.DownlinkBand)
		fBias = m2*skyRef - c2*c.TransponderFreq + c4
		refFreq = c.TransponderFreq
		ulOut = atdf.BandKu
	} else {
		fBias = c4
	}

	observed := deltaNTc - math.Abs(fBias)
	if c4 != 0 {
		observed = math.Copysign(1, c4) * observed
	}

	outKey := key
	outKey.Uplink = ulOut
	xmtr := fmt.Sprintf("DSS %d", cur.Station)
	if way == 1 {
		xmtr = "S/C"
	}
	return Observable{
		Time:        ref.TimeTag.Add(time.Duration(dt * 0.5 * float64(time.Second))),
		Key:         outKey,
		TypeName:    typeName(cur.DataType, way),
		Way:         way,
		Value:       observed,
		RefFreq:     refFreq,
		CountTime:   ct,
		RangeLC:     cur.LowestRangeComponent,
		Xmtr:        xmtr,
		Rcvr:        fmt.Sprintf("DSS %d", cur.Station),
		ExciterBand: exciterBand,
		XmtrDelay:   cur.ExciterDelay * 1e9,
		RcvrDelay:   cur.RcvrDelay * 1e9,
		ScDelay:     0.5 * (cur.ScDelay + ref.ScDelay) * 1e9,
		Flags:       flags,
		StartRecord: startIdx,
		EndRecord:   endIdx,
	}, true
}

// desync builds the degraded placeholder row reported once per counter
// discontinuity. The value is meaningless and zeroed.
func (c *Converter) desync(ref, cur *atdf.DataRecord, key ChannelKey, ct float64, flags Flag, startIdx, endIdx int) Observable {
	way := dopplerWay(cur)
	ratio, _ := turnaroundRatio(cur)
	xmtr := fmt.Sprintf("DSS %d", cur.Station)
	if way == 1 {
		xmtr = "S/C"
	}
	return Observable{
		Time:        ref.TimeTag.Add(time.Duration(ct * 0.5 * float64(time.Second))),
		Key:         key,
		TypeName:    typeName(cur.DataType, way),
		Way:         way,
		CountTime:   ct,
		RangeLC:     cur.LowestRangeComponent,
		Xmtr:        xmtr,
		Rcvr:        fmt.Sprintf("DSS %d", cur.Station),
		ExciterBand: exciterBandOf(ratio),
		XmtrDelay:   cur.ExciterDelay * 1e9,
		RcvrDelay:   cur.RcvrDelay * 1e9,
		ScDelay:     cur.ScDelay * 1e9,
		Flags:       flags,
		StartRecord: startIdx,
		EndRecord:   endIdx,
	}
}

// rangeRefFreq computes the sky-level reference frequency for a range
// sample whose recorded frequency sits at the exciter level.
func rangeRefFreq(d *atdf.DataRecord) (float64, bool) {
	freq := d.DopplerRefFreq
	if skyBand(freq) == d.DownlinkBand && d.DownlinkBand != "" {
		return freq, true
	}
	fac := exciterMultiple(freq)
	if fac == 0 {
		log.Warnf("Invalid reference frequency %.3f MHz at %s for range; expected near %.0f MHz. Skipping record",
			freq/1e6, d.TimeTag.UTC(), exciterLevel/1e6)
		return 0, false
	}
	freq /= fac

	if sky, ok := skyFrequency(freq, d.UplinkBand, d.Station, d.DopplerRcvrType); ok {
		return sky, true
	}
	log.Warnf("Reference frequency is not at the sky level and cannot be lifted. Time tag: %s UTC, station: DSS %d, uplink band: %s, reference: %g Hz",
		d.TimeTag.UTC(), d.Station, d.UplinkBand, d.DopplerRefFreq)
	return 0, false
}

// Range converts one range sample into a round-trip delay observable in
// range units, applying the station calibration, Z-correction and
// spacecraft delay.
func (c *Converter) Range(d *atdf.DataRecord, key ChannelKey, flags Flag, idx int) (Observable, bool) {
	if !dsnStations[d.Station] {
		log.Warnf("Station DSS %d is not a DSN station; range record at %s skipped", d.Station, d.TimeTag.UTC())
		return Observable{}, false
	}
	way := rangeWay(d)

	// Exciter band: from the sky-level reference when recorded that way,
	// else from the turnaround ratio, else assume the uplink band.
	var refFreq float64
	exciterBand := skyBand(d.DopplerRefFreq)
	if exciterBand != "" {
		refFreq = d.DopplerRefFreq
	} else {
		if d.TurnaroundNum != 0 && d.TurnaroundDen != 0 {
			exciterBand = exciterBandOf(float64(d.TurnaroundNum) / float64(d.TurnaroundDen))
		} else {
			exciterBand = d.UplinkBand
		}
		var ok bool
		refFreq, ok = rangeRefFreq(d)
		if !ok {
			return Observable{}, false
		}
	}

	ru := secToRU(exciterBand, refFreq, d.Station, d.DopplerRcvrType)
	z := d.ZCorrection * ru
	observed := d.Range - d.RangeEqupDelay + z - d.ScDelay*ru

	xmtr := fmt.Sprintf("DSS %d", d.Station)
	if way == 1 {
		xmtr = "S/C"
	}
	return Observable{
		Time:        d.TimeTag,
		Key:         key,
		TypeName:    typeName(d.DataType, way),
		Way:         way,
		Value:       observed,
		RefFreq:     refFreq,
		CountTime:   d.CountTime,
		RangeLC:     d.LowestRangeComponent,
		Xmtr:        xmtr,
		Rcvr:        fmt.Sprintf("DSS %d", d.Station),
		ExciterBand: exciterBand,
		XmtrDelay:   d.ExciterDelay * 1e9,
		RcvrDelay:   d.RcvrDelay * 1e9,
		ScDelay:     d.ScDelay * 1e9,
		Flags:       flags,
		StartRecord: idx,
		EndRecord:   idx,
	}, true
}
