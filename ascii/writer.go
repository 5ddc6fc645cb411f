// Package ascii renders reconstructed observables and ramp intervals as
// fixed-width comma-separated tables.
package ascii

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/deepspacetools/atdftools/obs"
)

const timeLayout = "2006-01-02 15:04:05.000000"

// UTC with microseconds, padded to the table column width.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatCT renders a count time without trailing zeros so 60 s prints
// as "60" and a tenth-second high-rate sample as "0.1".
func formatCT(ct float64) string {
	return strconv.FormatFloat(ct, 'g', -1, 64)
}

// MsrWriter emits measurement tables. Each data type gets its own
// section header; rows carry the quality annotation and the ordinals of
// the records bounding the interval.
type MsrWriter struct {
	w               *bufio.Writer
	includeDegraded bool
	written         int
	suppressed      int
}

func NewMsrWriter(w io.Writer, includeDegraded bool) *MsrWriter {
	return &MsrWriter{w: bufio.NewWriter(w), includeDegraded: includeDegraded}
}

// Section starts a table section. unit names the observed quantity,
// "Hz" for Doppler and "RU" for range.
func (m *MsrWriter) Section(unit string) error {
	_, err := fmt.Fprintf(m.w,
		"# %25s, %15s, %5s, %10s, %10s, %5s, %5s, %5s, %5s, %10s, %10s, %25s, %25s, %15s, %15s, %15s, %10s, %13s\n",
		"time_tag (UTC)", "Data Type", "scID", "Xmtr", "Rcvr", "Chnl", "UL", "DL", "Ex", "CT (sec)",
		"Rng-LC", "Observed ("+unit+")", "Ref-Freq (Hz)", "XmtrDly (nsec)", "RcvrDly (nsec)", "ScDly (nsec)",
		"Quality", "Records")
	return err
}

// Write appends one observable row. Degraded rows are dropped unless
// their inclusion was requested.
func (m *MsrWriter) Write(o obs.Observable) error {
	if o.Flags.Degraded() && !m.includeDegraded {
		m.suppressed++
		return nil
	}
	_, err := fmt.Fprintf(m.w,
		"%27s, %15s, %5d, %10s, %10s, %5d, %5s, %5s, %5s, %10s, %10d, %25.10f, %25.10f, %15.6f, %15.6f, %15.6f, %10s, %13s\n",
		formatTime(o.Time),
		o.TypeName,
		o.Key.ScID,
		o.Xmtr,
		o.Rcvr,
		o.Key.Channel,
		o.Key.Uplink,
		o.Key.Downlink,
		o.ExciterBand,
		formatCT(o.CountTime),
		o.RangeLC,
		o.Value,
		o.RefFreq,
		o.XmtrDelay,
		o.RcvrDelay,
		o.ScDelay,
		o.Flags,
		fmt.Sprintf("%d:%d", o.StartRecord, o.EndRecord))
	if err == nil {
		m.written++
	}
	return err
}

// Written reports rows emitted; Suppressed reports degraded rows the
// configuration dropped.
func (m *MsrWriter) Written() int    { return m.written }
func (m *MsrWriter) Suppressed() int { return m.suppressed }

func (m *MsrWriter) Flush() error { return m.w.Flush() }

// RampWriter emits the uplink ramp table.
type RampWriter struct {
	w       *bufio.Writer
	written int
}

func NewRampWriter(w io.Writer) *RampWriter {
	return &RampWriter{w: bufio.NewWriter(w)}
}

func (r *RampWriter) Header() error {
	_, err := fmt.Fprintf(r.w, "# %25s, %30s, %10s, %5s, %25s, %15s\n",
		"Start-Time", "End-Time", "Station", "Band", "Frequency (Hz)", "Rate (Hz/sec)")
	return err
}

func (r *RampWriter) Write(ri obs.RampInterval) error {
	_, err := fmt.Fprintf(r.w, "%27s, %30s, %10s, %5s, %25.10f, %15.6f\n",
		formatTime(ri.Start),
		formatTime(ri.End),
		fmt.Sprintf("DSS %d", ri.Station),
		ri.Band,
		ri.Freq,
		ri.Rate)
	if err == nil {
		r.written++
	}
	return err
}

func (r *RampWriter) Written() int { return r.written }

func (r *RampWriter) Flush() error { return r.w.Flush() }
