package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/deepspacetools/atdftools/atdf"
)

const (
	RC_SUCCESS    = 0
	RC_IO_ERROR   = 1
	RC_BAD_HEADER = 2
	RC_RECOVERED  = 3
)

var cli struct {
	Paths   []string `arg:"" help:"Path to ATDF file" sep:" "`
	Census  bool     `help:"Walk every record and print the record census" default:"false"`
	Verbose bool     `help:"Prints debug output by default"`
}

func main() {
	_ = kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	if len(cli.Paths) == 0 {
		os.Exit(0)
	}

	var rc int = 0
	for _, path := range cli.Paths {
		ret := infoAtdfFile(path)
		if ret > rc {
			rc = ret
		}
	}
	os.Exit(rc)
}

func infoAtdfFile(path string) int {
	r, err := atdf.Open(path)
	if err != nil {
		if errors.Is(err, atdf.ErrBadHeader) {
			log.Errorf("Invalid ATDF file (%s): %s", path, err.Error())
			return RC_BAD_HEADER
		}
		log.Errorf("Could not read file %s: %s", path, err.Error())
		return RC_IO_ERROR
	}
	defer r.Close()

	hdr := r.Header()
	fmt.Printf("%s:\n", path)
	fmt.Printf("  Format:                %d\n", hdr.Format)
	fmt.Printf("  Spacecraft:            %d\n", hdr.ScID)
	fmt.Printf("  Start:                 %s\n", hdr.Start.UTC())
	fmt.Printf("  End:                   %s\n", hdr.End.UTC())
	fmt.Printf("  Transponder frequency: %.3f Hz\n", hdr.TransponderFreq)
	if size := r.Size(); size > 0 {
		fmt.Printf("  Size:                  %d bytes (%d records)\n", size, size/atdf.RecordSize)
	}

	if !cli.Census {
		return RC_SUCCESS
	}

	var first, last time.Time
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Errorf("Read failed mid-file (%s): %s", path, err.Error())
			return RC_IO_ERROR
		}
		if rec.Kind == atdf.KindData || rec.Kind == atdf.KindRamp {
			if first.IsZero() || rec.Data.TimeTag.Before(first) {
				first = rec.Data.TimeTag
			}
			if rec.Data.TimeTag.After(last) {
				last = rec.Data.TimeTag
			}
		}
	}

	stats := r.Stats()
	fmt.Printf("  Records:               %d\n", stats.Records)
	fmt.Printf("    data:                %d (%d high-rate)\n", stats.Data, stats.HighRate)
	fmt.Printf("    ramp:                %d\n", stats.Ramps)
	fmt.Printf("    comment:             %d\n", stats.Comments)
	fmt.Printf("    filler:              %d\n", stats.Filler)
	fmt.Printf("    malformed:           %d\n", stats.Malformed)
	fmt.Printf("    unknown type:        %d\n", stats.Unknown)
	if !first.IsZero() {
		fmt.Printf("  Observed span:         %s to %s\n", first.UTC(), last.UTC())
	}
	if stats.Truncated {
		fmt.Printf("  WARNING: file ends mid-record\n")
	}

	if stats.Malformed > 0 || stats.Unknown > 0 || stats.Truncated {
		return RC_RECOVERED
	}
	return RC_SUCCESS
}
