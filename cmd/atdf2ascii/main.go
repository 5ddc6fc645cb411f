package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/v2"

	"github.com/deepspacetools/atdftools/ascii"
	"github.com/deepspacetools/atdftools/atdf"
	"github.com/deepspacetools/atdftools/obs"
	"github.com/deepspacetools/atdftools/tui"
)

const (
	RC_SUCCESS    = 0
	RC_IO_ERROR   = 1
	RC_BAD_HEADER = 2
	RC_RECOVERED  = 3
)

var cli struct {
	Verbose         bool      `help:"Prints debug output by default"`
	Config          string    `help:"Path to an HCL config file"`
	File            string    `arg:"" help:"Path to an ATDF file (.zst accepted)"`
	OutputDir       string    `help:"Directory to write the observable tables"`
	CountTime       []float64 `short:"c" help:"Admissible Doppler count times in seconds; other spacings compress onto the last value"`
	IncludeDegraded bool      `help:"Keep gap/desync rows in the output tables"`
	Xd1             bool      `help:"Exclude 1-way Doppler"`
	Xd2             bool      `help:"Exclude 2-way Doppler"`
	Xd3             bool      `help:"Exclude 3-way Doppler"`
	Xr1             bool      `help:"Exclude 1-way range"`
	Xr2             bool      `help:"Exclude 2-way range"`
	NoTui           bool      `help:"Disable the TUI and just use the cli"`
}

// Section order of the measurement table.
var dopplerTypes = []string{"1-Way-Doppler", "2-Way-Doppler", "3-Way-Doppler"}
var rangeTypes = []string{"1-Way-Range", "2-Way-Range"}

func excluded() map[string]bool {
	return map[string]bool{
		"1-Way-Doppler": cli.Xd1,
		"2-Way-Doppler": cli.Xd2,
		"3-Way-Doppler": cli.Xd3,
		"1-Way-Range":   cli.Xr1,
		"2-Way-Range":   cli.Xr2,
	}
}

func main() {
	_ = kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	settings, err := loadSettings(cli.Config)
	if err != nil {
		log.Errorf("Could not load settings: %s", err.Error())
		os.Exit(RC_IO_ERROR)
	}

	if cli.NoTui {
		os.Exit(decode(settings, false))
	}

	tuiConf := tui.TuiConf{
		EnableLogOutput: settings.Bool("tui.enable_log_output"),
		RefreshMs:       settings.Int("tui.refresh_ms"),
	}

	rc := RC_SUCCESS
	done := make(chan struct{})
	go func() {
		rc = decode(settings, true)
		close(done)
	}()

	tui.StartDecodeUI(done, tuiConf)
	<-done
	log.SetOutput(os.Stderr)
	os.Exit(rc)
}

func decode(settings *koanf.Koanf, progress bool) int {
	r, err := atdf.Open(cli.File)
	if err != nil {
		if errors.Is(err, atdf.ErrBadHeader) {
			log.Errorf("File %s is not a valid ATDF file: %s", cli.File, err.Error())
			return RC_BAD_HEADER
		}
		log.Errorf("Could not read file %s: %s", cli.File, err.Error())
		return RC_IO_ERROR
	}
	defer r.Close()

	hdr := r.Header()
	log.Infof("ATDF format %d, spacecraft %d", hdr.Format, hdr.ScID)
	log.Infof("Observation span: %s to %s", hdr.Start.UTC(), hdr.End.UTC())
	log.Infof("Transponder frequency: %.3f Hz", hdr.TransponderFreq)

	cfg := obs.Config{
		RolloverThreshold: settings.Float64("reconstruct.rollover_threshold"),
		MaxCountRate:      settings.Float64("reconstruct.max_count_rate"),
		GapTolerance:      settings.Float64("reconstruct.gap_tolerance"),
		CountTimes:        cli.CountTime,
		IncludeDegraded:   cli.IncludeDegraded || settings.Bool("output.include_degraded"),
	}
	conv := &obs.Converter{TransponderFreq: hdr.TransponderFreq}
	recon := obs.NewReconstructor(cfg, conv)
	ramps := obs.NewRampAssembler()

	skip := excluded()
	tables := make(map[string][]obs.Observable)
	var rampIntervals []obs.RampInterval
	lastTime := hdr.End

	collect := func(rows []obs.Observable) {
		kept := rows[:0]
		for _, o := range rows {
			if skip[o.TypeName] {
				continue
			}
			kept = append(kept, o)
		}
		recon.CountObservables(kept)
		for _, o := range kept {
			tables[o.TypeName] = append(tables[o.TypeName], o)
		}
	}

	var readErr error
	total := r.Size()
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		if rec.Kind == atdf.KindRamp {
			if iv, ok := ramps.Process(rec.Data); ok {
				rampIntervals = append(rampIntervals, iv)
			}
		} else {
			collect(recon.Process(rec))
		}
		if rec.Kind == atdf.KindData || rec.Kind == atdf.KindRamp {
			if rec.Data.TimeTag.After(lastTime) {
				lastTime = rec.Data.TimeTag
			}
		}

		if progress && rec.Index%256 == 0 {
			publishStats(r, recon, total, len(rampIntervals), false)
		}
	}
	collect(recon.Finish())
	rampIntervals = append(rampIntervals, ramps.Finish(lastTime)...)

	rc := writeTables(tables, rampIntervals, settings)
	if readErr != nil {
		log.Errorf("Read failed mid-file, output holds the decoded prefix: %s", readErr.Error())
		rc = RC_IO_ERROR
	}

	stats := r.Stats()
	sum := recon.Summary()
	log.Infof("Records: %d total, %d data, %d ramp, %d comment, %d filler",
		stats.Records, stats.Data, stats.Ramps, stats.Comments, stats.Filler)
	log.Infof("Observables: %d Doppler, %d range, %d ramp intervals", sum.Doppler, sum.Range, len(rampIntervals))
	log.Infof("Quality: %d malformed, %d unknown type, %d desyncs, %d gaps, %d wraps, %d duplicates, %d bad-flagged, %d out of order",
		stats.Malformed, stats.Unknown, sum.Desyncs, sum.Gaps, sum.Wraps, sum.Duplicates, sum.BadFlagged, sum.OutOfOrder)
	for _, note := range recon.Notes() {
		log.Infof("File comment: %s", note)
	}

	if progress {
		publishStats(r, recon, total, len(rampIntervals), true)
	}

	if rc == RC_SUCCESS && (stats.Malformed > 0 || stats.Unknown > 0 || stats.Truncated || sum.Desyncs > 0) {
		rc = RC_RECOVERED
	}
	return rc
}

func publishStats(r *atdf.Reader, recon *obs.Reconstructor, total int64, nramps int, done bool) {
	stats := r.Stats()
	sum := recon.Summary()
	tui.WriteDecodeStats(tui.DecodeStats{
		FileName:   cli.File,
		BytesRead:  int64(stats.Records) * atdf.RecordSize,
		BytesTotal: total,
		Records:    stats.Records,
		Data:       stats.Data,
		Malformed:  stats.Malformed,
		Unknown:    stats.Unknown,
		Doppler:    sum.Doppler,
		Range:      sum.Range,
		Ramps:      nramps,
		Desyncs:    sum.Desyncs,
		Gaps:       sum.Gaps,
		Wraps:      sum.Wraps,
		Duplicates: sum.Duplicates,
		Channels:   recon.Channels(),
		Done:       done,
	})
}

// writeTables renders the per-type measurement sections and the ramp
// table. Output is flushed even when the decode stopped early so a
// truncated input still yields its readable prefix.
func writeTables(tables map[string][]obs.Observable, rampIntervals []obs.RampInterval, settings *koanf.Koanf) int {
	outputDir := settings.String("output.dir")
	if cli.OutputDir != "" {
		outputDir = cli.OutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Errorf("Could not create output directory %s: %s", outputDir, err.Error())
		return RC_IO_ERROR
	}

	base := filepath.Base(cli.File)
	base = strings.TrimSuffix(base, ".zst")
	base = strings.TrimSuffix(base, filepath.Ext(base))

	includeDegraded := cli.IncludeDegraded || settings.Bool("output.include_degraded")

	msrPath := filepath.Join(outputDir, base+".msr")
	f, err := os.Create(msrPath)
	if err != nil {
		log.Errorf("Could not open output file %s: %s", msrPath, err.Error())
		return RC_IO_ERROR
	}
	defer f.Close()

	mw := ascii.NewMsrWriter(f, includeDegraded)
	write := func(names []string, unit string) error {
		for _, name := range names {
			rows := tables[name]
			if len(rows) == 0 {
				continue
			}
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
			if err := mw.Section(unit); err != nil {
				return err
			}
			for _, o := range rows {
				if err := mw.Write(o); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := write(dopplerTypes, "Hz"); err == nil {
		err = write(rangeTypes, "RU")
	}
	if err == nil {
		err = mw.Flush()
	}
	if err != nil {
		log.Errorf("Could not write to output file %s: %s", msrPath, err.Error())
		return RC_IO_ERROR
	}
	log.Infof("Wrote %d rows to %s (%d degraded rows suppressed)", mw.Written(), msrPath, mw.Suppressed())

	if len(rampIntervals) > 0 {
		rampPath := filepath.Join(outputDir, base+".ramp")
		rf, err := os.Create(rampPath)
		if err != nil {
			log.Errorf("Could not open output file %s: %s", rampPath, err.Error())
			return RC_IO_ERROR
		}
		defer rf.Close()

		rw := ascii.NewRampWriter(rf)
		err = rw.Header()
		for i := 0; err == nil && i < len(rampIntervals); i++ {
			err = rw.Write(rampIntervals[i])
		}
		if err == nil {
			err = rw.Flush()
		}
		if err != nil {
			log.Errorf("Could not write to output file %s: %s", rampPath, err.Error())
			return RC_IO_ERROR
		}
		log.Infof("Wrote %d ramp intervals to %s", rw.Written(), rampPath)
	}
	return RC_SUCCESS
}
