package obs

import (
	"sort"

	"github.com/charmbracelet/log"

	"github.com/deepspacetools/atdftools/atdf"
)

// CounterModulus is the numeric range of the Doppler cycle counter; the
// counter resets through zero when it exceeds it.
const CounterModulus = float64(1 << 32)

// timeTol absorbs sub-millisecond jitter when comparing record spacing
// against the count time.
const timeTol = 1e-3

// Config bounds the per-channel counter differencing.
type Config struct {
	// RolloverThreshold is the counter drop, in counts, beyond which a
	// wraparound is inferred rather than a legitimate negative delta.
	RolloverThreshold float64
	// MaxCountRate is the plausibility ceiling, in counts per second; a
	// wrap-corrected delta implying a faster rate is a desync.
	MaxCountRate float64
	// GapTolerance flags a gap when record spacing exceeds this multiple
	// of the count time.
	GapTolerance float64
	// CountTimes restricts Doppler output to these count times; empty
	// keeps the native spacing of the file.
	CountTimes []float64
	// IncludeDegraded keeps gap/desync rows in the output tables.
	IncludeDegraded bool
}

func (c Config) withDefaults() Config {
	if c.RolloverThreshold <= 0 {
		c.RolloverThreshold = CounterModulus / 2
	}
	if c.MaxCountRate <= 0 {
		c.MaxCountRate = 1e7
	}
	if c.GapTolerance <= 0 {
		c.GapTolerance = 1.5
	}
	return c
}

// Summary counts what the reconstructor decided about the stream.
type Summary struct {
	Doppler    int // Doppler observables emitted
	Range      int // range observables emitted
	BadFlagged int // records flagged bad, excluded from differencing
	Duplicates int // superseded same-timestamp records
	OutOfOrder int // records with time tags behind their channel
	Gaps       int
	Wraps      int
	Desyncs    int
	Skipped    int // records the converter could not use
	Comments   int
}

type channelState struct {
	ref     *atdf.DataRecord // start of the open interval, last known good
	refIdx  int
	cur     *atdf.DataRecord // end of the open interval
	curIdx  int
	ct      float64
	pending *Observable // interval ref->cur, held until superseding is ruled out
}

func (st *channelState) latest() *atdf.DataRecord {
	if st.cur != nil {
		return st.cur
	}
	return st.ref
}

// Reconstructor consumes parsed records in file order and rebuilds
// continuous per-channel counter sequences into observables. It owns all
// per-channel state; records for different keys never interact.
type Reconstructor struct {
	cfg      Config
	conv     *Converter
	channels map[ChannelKey]*channelState
	notes    []string
	sum      Summary
}

func NewReconstructor(cfg Config, conv *Converter) *Reconstructor {
	return &Reconstructor{
		cfg:      cfg.withDefaults(),
		conv:     conv,
		channels: make(map[ChannelKey]*channelState),
	}
}

func (r *Reconstructor) Summary() Summary { return r.sum }

// Notes returns the comment-record text collected from the stream.
func (r *Reconstructor) Notes() []string { return r.notes }

// Channels lists the tracking channels seen so far, sorted.
func (r *Reconstructor) Channels() []string {
	keys := make([]string, 0, len(r.channels))
	for k := range r.channels {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

// Process consumes one record and returns any observables whose
// intervals it completed. Catalog, comment and ramp records never touch
// counter state.
func (r *Reconstructor) Process(rec *atdf.Record) []Observable {
	switch rec.Kind {
	case atdf.KindComment:
		r.sum.Comments++
		r.notes = append(r.notes, rec.Comment)
		return nil
	case atdf.KindData:
	default:
		return nil
	}

	d := rec.Data
	switch d.DataType {
	case atdf.DataTypeDoppler1Way, atdf.DataTypeDoppler:
		return r.doppler(d, rec.Index)
	case atdf.DataTypeRange:
		return r.ranging(d, rec.Index)
	}
	return nil
}

// Finish flushes the intervals still open at end of stream and returns
// their observables.
func (r *Reconstructor) Finish() []Observable {
	var out []Observable
	for _, st := range r.channels {
		if st.pending != nil {
			out = append(out, *st.pending)
			st.pending = nil
		}
	}
	return out
}

// countTimeFor applies the count-time compression selection: a record's
// native count time when admissible, otherwise the coarsest requested.
func (r *Reconstructor) countTimeFor(d *atdf.DataRecord) float64 {
	if len(r.cfg.CountTimes) == 0 {
		return d.CountTime
	}
	for _, ct := range r.cfg.CountTimes {
		if d.CountTime == ct {
			return ct
		}
	}
	return r.cfg.CountTimes[len(r.cfg.CountTimes)-1]
}

func (r *Reconstructor) doppler(d *atdf.DataRecord, idx int) []Observable {
	if !d.DopplerValid {
		// A bad record contributes no delta and does not displace the
		// last good reference.
		r.sum.BadFlagged++
		return nil
	}
	ct := r.countTimeFor(d)
	key := keyOf(d)
	st := r.channels[key]
	if st == nil {
		r.channels[key] = &channelState{ref: d, refIdx: idx, ct: ct}
		return nil
	}

	last := st.latest()
	switch {
	case d.TimeTag.Equal(last.TimeTag):
		// Duplicate timestamp: the later record in file order wins.
		r.sum.Duplicates++
		if st.cur == nil {
			st.ref, st.refIdx = d, idx
			return nil
		}
		st.cur, st.curIdx = d, idx
		r.remake(st, key, ct)
		return nil
	case d.TimeTag.Before(last.TimeTag):
		r.sum.OutOfOrder++
		log.Debugf("Record %d for %s runs backwards in time; skipped", idx, key)
		return nil
	}

	var out []Observable
	if st.pending != nil {
		out = append(out, *st.pending)
		st.pending = nil
		st.ref, st.refIdx = st.cur, st.curIdx
		st.cur = nil
	}

	dt := d.TimeTag.Sub(st.ref.TimeTag).Seconds()
	if dt < ct*(1-timeTol) {
		// Sub-interval sample under count-time compression; wait for the
		// record that completes the requested interval.
		return out
	}
	if st.ct != ct {
		// Count-time change: restart accumulation at the new interval.
		st.ref, st.refIdx, st.cur, st.ct = d, idx, nil, ct
		return out
	}

	var flags Flag
	if dt > ct*r.cfg.GapTolerance+timeTol {
		flags |= FlagGap
		r.sum.Gaps++
	}

	raw := d.DopplerCount() - st.ref.DopplerCount()
	switch {
	case raw < -r.cfg.RolloverThreshold:
		raw += CounterModulus
		flags |= FlagWrap
		r.sum.Wraps++
	case raw > CounterModulus-r.cfg.RolloverThreshold:
		raw -= CounterModulus
		flags |= FlagWrap
		r.sum.Wraps++
	}

	if raw > r.cfg.MaxCountRate*dt || raw < -r.cfg.MaxCountRate*dt {
		// Discontinuity beyond the detectable wraparound window: report
		// once and resume fresh accumulation from this record.
		r.sum.Desyncs++
		log.Warnf("Channel desync on %s at %s: counter moved %.0f counts in %.2f s", key, d.TimeTag.UTC(), raw, dt)
		ob := r.conv.desync(st.ref, d, key, ct, flags|FlagDesync, st.refIdx, idx)
		st.cur, st.curIdx = d, idx
		st.pending = &ob
		return out
	}

	st.cur, st.curIdx = d, idx
	if ob, ok := r.conv.Doppler(st.ref, d, key, raw, ct, dt, flags, st.refIdx, idx); ok {
		st.pending = &ob
	} else {
		// Unconvertible interval: keep the record as the new reference
		// so the stream continues.
		r.sum.Skipped++
		st.ref, st.refIdx, st.cur = d, idx, nil
	}
	return out
}

func (r *Reconstructor) remake(st *channelState, key ChannelKey, ct float64) {
	dt := st.cur.TimeTag.Sub(st.ref.TimeTag).Seconds()
	var flags Flag
	if dt > ct*r.cfg.GapTolerance+timeTol {
		flags |= FlagGap
	}
	raw := st.cur.DopplerCount() - st.ref.DopplerCount()
	if raw < -r.cfg.RolloverThreshold {
		raw += CounterModulus
		flags |= FlagWrap
	} else if raw > CounterModulus-r.cfg.RolloverThreshold {
		raw -= CounterModulus
		flags |= FlagWrap
	}
	if ob, ok := r.conv.Doppler(st.ref, st.cur, key, raw, ct, dt, flags, st.refIdx, st.curIdx); ok {
		st.pending = &ob
	} else {
		st.pending = nil
	}
}

func (r *Reconstructor) ranging(d *atdf.DataRecord, idx int) []Observable {
	if !d.RangeValid {
		r.sum.BadFlagged++
		return nil
	}
	key := keyOf(d)
	st := r.channels[key]
	if st == nil {
		st = &channelState{}
		r.channels[key] = st
	}

	if st.cur != nil {
		switch {
		case d.TimeTag.Equal(st.cur.TimeTag):
			// Later duplicate supersedes the held row.
			r.sum.Duplicates++
			var flags Flag
			if st.pending != nil {
				flags = st.pending.Flags
			}
			if ob, ok := r.conv.Range(d, key, flags, idx); ok {
				st.pending = &ob
			} else {
				r.sum.Skipped++
				st.pending = nil
			}
			st.cur, st.curIdx = d, idx
			return nil
		case d.TimeTag.Before(st.cur.TimeTag):
			r.sum.OutOfOrder++
			return nil
		}
	}

	var out []Observable
	if st.pending != nil {
		out = append(out, *st.pending)
		st.pending = nil
	}

	var flags Flag
	if st.cur != nil {
		dt := d.TimeTag.Sub(st.cur.TimeTag).Seconds()
		if d.CountTime > 0 && dt > d.CountTime*r.cfg.GapTolerance+timeTol {
			flags |= FlagGap
			r.sum.Gaps++
		}
	}
	if ob, ok := r.conv.Range(d, key, flags, idx); ok {
		st.pending = &ob
	} else {
		r.sum.Skipped++
	}
	st.cur, st.curIdx = d, idx
	return out
}

// CountObservables tallies emitted rows into the summary; the caller
// invokes it once per returned observable so suppressed conversions do
// not inflate the counts.
func (r *Reconstructor) CountObservables(obs []Observable) {
	for _, o := range obs {
		if o.Key.DataType == atdf.DataTypeRange {
			r.sum.Range++
		} else {
			r.sum.Doppler++
		}
	}
}
