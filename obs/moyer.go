package obs

import (
	"math"

	"github.com/deepspacetools/atdftools/atdf"
)

// Band conversion constants from Moyer, "Formulation for Observed and
// Computed Values of Deep Space Network Data Types for Navigation".

// turnaround returns the spacecraft turnaround ratio M2 for an
// uplink/downlink band pair (Moyer table 13-1).
func turnaround(ul, dl atdf.Band) (float64, bool) {
	num := map[atdf.Band]float64{atdf.BandS: 240, atdf.BandX: 880, atdf.BandKa: 3344}
	den := map[atdf.Band]float64{atdf.BandS: 221, atdf.BandX: 749, atdf.BandKa: 3599}
	n, ok1 := num[dl]
	d, ok2 := den[ul]
	if !ok1 || !ok2 {
		return 0, false
	}
	return n / d, true
}

// downConversion returns the C2 downlink conversion factor for a band
// (Moyer table 13-2).
func downConversion(dl atdf.Band) (float64, bool) {
	switch dl {
	case atdf.BandS:
		return 1, true
	case atdf.BandX:
		return 880.0 / 240.0, true
	case atdf.BandKa:
		return 3344.0 / 240.0, true
	}
	return 0, false
}

// exciterBandOf inverts table 13-1: find the exciter (uplink) band that
// produces the given turnaround ratio for any downlink band.
func exciterBandOf(ratio float64) atdf.Band {
	for _, ul := range []atdf.Band{atdf.BandS, atdf.BandX, atdf.BandKa} {
		for _, dl := range []atdf.Band{atdf.BandS, atdf.BandX, atdf.BandKa} {
			m2, _ := turnaround(ul, dl)
			if math.Abs(ratio-m2) <= 1e-12*m2 {
				return ul
			}
		}
	}
	return ""
}

// skyBand classifies a sky-level frequency into its band designator.
func skyBand(freq float64) atdf.Band {
	switch {
	case freq >= 1.0e9 && freq < 2.0e9:
		return atdf.BandL
	case freq >= 2.0e9 && freq < 4.0e9:
		return atdf.BandS
	case freq >= 4.0e9 && freq < 7.0e9:
		return atdf.BandC
	case freq >= 7.0e9 && freq < 12.0e9:
		return atdf.BandX
	case freq >= 12.0e9 && freq < 18.0e9:
		return atdf.BandKu
	case freq >= 26.5e9 && freq < 40.0e9:
		return atdf.BandKa
	}
	return ""
}

// exciterLevel is the nominal exciter synthesizer frequency; reference
// frequencies recorded below sky level sit at an integer multiple of it.
const exciterLevel = 22e6

func exciterMultiple(freq float64) float64 {
	return math.Round(freq / exciterLevel)
}

// Block IV receiver stations use a different exciter-to-sky chain.
var blockIVStations = map[int]bool{15: true, 45: true, 65: true}

const blockIVRcvrType = 5

// skyFrequency lifts an exciter-level reference frequency to the sky
// level for the given uplink band (Moyer equations 13-1, 13-2/4).
func skyFrequency(freq float64, ul atdf.Band, station, rcvrType int) (float64, bool) {
	switch ul {
	case atdf.BandS:
		return 96.0 * freq, true
	case atdf.BandX:
		if blockIVStations[station] && rcvrType != blockIVRcvrType {
			freq = 4.68125*freq - 81.4125e6
		}
		return 32.0*freq + 6.5e9, true
	case atdf.BandKa:
		return 1000.0*freq + 1e10, true
	}
	return 0, false
}

// secToRU converts seconds to range units at the given exciter band and
// sky frequency.
func secToRU(band atdf.Band, freq float64, station, rcvrType int) float64 {
	switch band {
	case atdf.BandS:
		return 0.5 * freq
	case atdf.BandX:
		if blockIVStations[station] && rcvrType != blockIVRcvrType {
			return (11.0 / 75.0) * freq
		}
		return (221.0 / (749.0 * 2.0)) * freq
	}
	return 0
}

// dsnStations is the set of Deep Space Network station ids the tables
// admit; records naming anything else are reported and skipped.
var dsnStations = map[int]bool{
	12: true, 14: true, 15: true, 24: true, 25: true, 26: true,
	34: true, 35: true, 36: true, 42: true, 43: true, 45: true,
	54: true, 55: true, 61: true, 63: true, 64: true, 65: true, 66: true,
}
