package obs

import (
	"math"
	"testing"
	"time"

	"github.com/deepspacetools/atdftools/atdf"
)

func TestDopplerBiasSign(t *testing.T) {
	ref := doppler2(t0, 0, 60)
	cur := doppler2(t0.Add(60*time.Second), 60000, 60)
	cur.DopplerBias = -400

	conv := &Converter{TransponderFreq: 8.4e9}
	o, ok := conv.Doppler(ref, cur, keyOf(cur), 60000, 60, 60, 0, 2, 3)
	if !ok {
		t.Fatalf("conversion failed")
	}
	// 1000 Hz raw rate, bias magnitude 400, negative bias flips the sign.
	if math.Abs(o.Value-(-600)) > 1e-9 {
		t.Errorf("Value = %v, want -600", o.Value)
	}
	if o.RefFreq != 7.2e9 {
		t.Errorf("RefFreq = %v, want the sky-level reference unchanged", o.RefFreq)
	}
	if o.ExciterBand != atdf.BandX {
		t.Errorf("ExciterBand = %s, want X", o.ExciterBand)
	}
	if o.Xmtr != "DSS 14" || o.Rcvr != "DSS 14" {
		t.Errorf("Xmtr/Rcvr = %s/%s", o.Xmtr, o.Rcvr)
	}
}

func TestDopplerExciterLevelReference(t *testing.T) {
	ref := doppler2(t0, 0, 60)
	cur := doppler2(t0.Add(60*time.Second), 60000, 60)
	ref.DopplerRefFreq = 22e6
	cur.DopplerRefFreq = 22e6

	conv := &Converter{TransponderFreq: 8.4e9}
	o, ok := conv.Doppler(ref, cur, keyOf(cur), 60000, 60, 60, 0, 2, 3)
	if !ok {
		t.Fatalf("conversion failed")
	}
	if want := 32.0*22e6 + 6.5e9; math.Abs(o.RefFreq-want) > 1e-6 {
		t.Errorf("RefFreq = %v, want %v", o.RefFreq, want)
	}
}

func TestDopplerBlockIVReceiverChain(t *testing.T) {
	ref := doppler2(t0, 0, 60)
	cur := doppler2(t0.Add(60*time.Second), 60000, 60)
	for _, d := range []*atdf.DataRecord{ref, cur} {
		d.Station = 15
		d.DopplerRefFreq = 22e6
	}

	conv := &Converter{TransponderFreq: 8.4e9}
	o, ok := conv.Doppler(ref, cur, keyOf(cur), 60000, 60, 60, 0, 2, 3)
	if !ok {
		t.Fatalf("conversion failed")
	}
	want := 32.0*(4.68125*22e6-81.4125e6) + 6.5e9
	if math.Abs(o.RefFreq-want) > 1e-6 {
		t.Errorf("RefFreq = %v, want %v", o.RefFreq, want)
	}
}

func TestDopplerOneWay(t *testing.T) {
	ref := doppler2(t0, 0, 60)
	cur := doppler2(t0.Add(60*time.Second), 60000, 60)
	for _, d := range []*atdf.DataRecord{ref, cur} {
		d.DataType = atdf.DataTypeDoppler1Way
		d.GroundMode = 1
		d.DopplerRefFreq = 22e6
	}

	transponder := 8.4e9
	conv := &Converter{TransponderFreq: transponder}
	o, ok := conv.Doppler(ref, cur, keyOf(cur), 60000, 60, 60, 0, 2, 3)
	if !ok {
		t.Fatalf("conversion failed")
	}
	if o.TypeName != "1-Way-Doppler" || o.Way != 1 {
		t.Errorf("type = %s way %d", o.TypeName, o.Way)
	}
	if o.Xmtr != "S/C" {
		t.Errorf("Xmtr = %s, want S/C", o.Xmtr)
	}
	if o.RefFreq != transponder {
		t.Errorf("RefFreq = %v, want the transponder frequency", o.RefFreq)
	}
	if o.Key.Uplink != atdf.BandKu {
		t.Errorf("output uplink band = %s, want Ku", o.Key.Uplink)
	}

	skyRef := 32.0*22e6 + 6.5e9
	fBias := (880.0/749.0)*skyRef - (880.0/240.0)*transponder
	want := 1000 - math.Abs(fBias)
	if math.Abs(o.Value-want) > 1e-3 {
		t.Errorf("Value = %v, want %v", o.Value, want)
	}
}

func TestDopplerKaUplinkSkipped(t *testing.T) {
	ref := doppler2(t0, 0, 60)
	cur := doppler2(t0.Add(60*time.Second), 60000, 60)
	cur.UplinkBand = atdf.BandKa

	conv := &Converter{}
	if _, ok := conv.Doppler(ref, cur, keyOf(cur), 60000, 60, 60, 0, 2, 3); ok {
		t.Fatalf("Ka uplink must be skipped")
	}
}

func TestDopplerZeroDeltaSkipped(t *testing.T) {
	ref := doppler2(t0, 500, 60)
	cur := doppler2(t0.Add(60*time.Second), 500, 60)

	conv := &Converter{}
	if _, ok := conv.Doppler(ref, cur, keyOf(cur), 0, 60, 60, 0, 2, 3); ok {
		t.Fatalf("zero counter delta must be skipped")
	}
}

func TestDopplerInvalidReferenceSkipped(t *testing.T) {
	ref := doppler2(t0, 0, 60)
	cur := doppler2(t0.Add(60*time.Second), 60000, 60)
	cur.DopplerRefFreq = 3 // nowhere near the exciter level

	conv := &Converter{}
	if _, ok := conv.Doppler(ref, cur, keyOf(cur), 60000, 60, 60, 0, 2, 3); ok {
		t.Fatalf("implausible reference frequency must be skipped")
	}
}

func TestRangeCorrections(t *testing.T) {
	d := ranging2(t0, 1e6)
	d.ZCorrection = 2e-9
	d.ScDelay = 1e-9

	conv := &Converter{}
	o, ok := conv.Range(d, keyOf(d), 0, 2)
	if !ok {
		t.Fatalf("conversion failed")
	}
	// S band: 0.5 * 2.2 GHz = 1.1e9 RU/s.
	ru := 0.5 * 2.2e9
	want := 1e6 - 100 + 2e-9*ru - 1e-9*ru
	if math.Abs(o.Value-want) > 1e-9 {
		t.Errorf("Value = %v, want %v", o.Value, want)
	}
	if o.RefFreq != 2.2e9 {
		t.Errorf("RefFreq = %v, want 2.2e9", o.RefFreq)
	}
	if o.ExciterBand != atdf.BandS {
		t.Errorf("ExciterBand = %s, want S", o.ExciterBand)
	}
	if o.TypeName != "2-Way-Range" || o.Xmtr != "DSS 14" {
		t.Errorf("type = %s xmtr %s", o.TypeName, o.Xmtr)
	}
}

func TestRangeOneWayTransmitter(t *testing.T) {
	d := ranging2(t0, 1e6)
	d.GroundMode = 5

	conv := &Converter{}
	o, ok := conv.Range(d, keyOf(d), 0, 2)
	if !ok {
		t.Fatalf("conversion failed")
	}
	if o.TypeName != "1-Way-Range" || o.Xmtr != "S/C" {
		t.Errorf("type = %s xmtr %s", o.TypeName, o.Xmtr)
	}
}

func TestRangeExciterLevelReference(t *testing.T) {
	d := ranging2(t0, 1e6)
	d.DopplerRefFreq = 22e6

	conv := &Converter{}
	o, ok := conv.Range(d, keyOf(d), 0, 2)
	if !ok {
		t.Fatalf("conversion failed")
	}
	// No turnaround ratio recorded: exciter band falls back to the
	// uplink band and the frequency is lifted to sky level.
	if o.ExciterBand != atdf.BandS {
		t.Errorf("ExciterBand = %s, want S", o.ExciterBand)
	}
	if want := 96.0 * 22e6; math.Abs(o.RefFreq-want) > 1e-6 {
		t.Errorf("RefFreq = %v, want %v", o.RefFreq, want)
	}
}

func TestRangeNonDSNStationSkipped(t *testing.T) {
	d := ranging2(t0, 1e6)
	d.Station = 99

	conv := &Converter{}
	if _, ok := conv.Range(d, keyOf(d), 0, 2); ok {
		t.Fatalf("non-DSN station must be skipped")
	}
}

func TestTurnaroundTable(t *testing.T) {
	cases := []struct {
		ul, dl atdf.Band
		want   float64
	}{
		{atdf.BandS, atdf.BandS, 240.0 / 221.0},
		{atdf.BandS, atdf.BandX, 880.0 / 221.0},
		{atdf.BandX, atdf.BandX, 880.0 / 749.0},
		{atdf.BandX, atdf.BandKa, 3344.0 / 749.0},
		{atdf.BandKa, atdf.BandS, 240.0 / 3599.0},
	}
	for _, tc := range cases {
		got, ok := turnaround(tc.ul, tc.dl)
		if !ok || got != tc.want {
			t.Errorf("turnaround(%s, %s) = %v/%v, want %v", tc.ul, tc.dl, got, ok, tc.want)
		}
	}
	if _, ok := turnaround(atdf.BandKu, atdf.BandS); ok {
		t.Errorf("Ku uplink has no turnaround ratio")
	}
}

func TestExciterBandOf(t *testing.T) {
	for _, tc := range []struct {
		ratio float64
		want  atdf.Band
	}{
		{880.0 / 749.0, atdf.BandX},
		{240.0 / 221.0, atdf.BandS},
		{3344.0 / 3599.0, atdf.BandKa},
	} {
		if got := exciterBandOf(tc.ratio); got != tc.want {
			t.Errorf("exciterBandOf(%v) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
	if got := exciterBandOf(1.5); got != "" {
		t.Errorf("exciterBandOf(1.5) = %s, want none", got)
	}
}

func TestSkyBandBoundaries(t *testing.T) {
	for _, tc := range []struct {
		freq float64
		want atdf.Band
	}{
		{1.5e9, atdf.BandL},
		{2.2e9, atdf.BandS},
		{5e9, atdf.BandC},
		{8.4e9, atdf.BandX},
		{13e9, atdf.BandKu},
		{32e9, atdf.BandKa},
		{22e6, ""},
		{20e9, ""}, // between Ku and Ka
	} {
		if got := skyBand(tc.freq); got != tc.want {
			t.Errorf("skyBand(%v) = %q, want %q", tc.freq, got, tc.want)
		}
	}
}

func TestSecToRU(t *testing.T) {
	if got := secToRU(atdf.BandS, 2.2e9, 14, 0); got != 1.1e9 {
		t.Errorf("S-band secToRU = %v, want 1.1e9", got)
	}
	want := (221.0 / (749.0 * 2.0)) * 8.4e9
	if got := secToRU(atdf.BandX, 8.4e9, 14, 0); got != want {
		t.Errorf("X-band secToRU = %v, want %v", got, want)
	}
	wantIV := (11.0 / 75.0) * 8.4e9
	if got := secToRU(atdf.BandX, 8.4e9, 15, 0); got != wantIV {
		t.Errorf("Block IV X-band secToRU = %v, want %v", got, wantIV)
	}
	if got := secToRU(atdf.BandX, 8.4e9, 15, blockIVRcvrType); got != want {
		t.Errorf("Block IV with advanced receiver = %v, want %v", got, want)
	}
}
