package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
)

type TuiConf struct {
	EnableLogOutput bool `json:"enable_log_output" hcl:"enable_log_output"`
	RefreshMs       int  `json:"refresh_ms" hcl:"refresh_ms"`
}

var LogOut *tview.TextView

// DecodeStats is the snapshot the decode goroutine publishes for the UI.
type DecodeStats struct {
	FileName   string
	BytesRead  int64
	BytesTotal int64 // 0 when unknown (compressed input)

	Records   int
	Data      int
	Malformed int
	Unknown   int

	Doppler int
	Range   int
	Ramps   int

	Desyncs    int
	Gaps       int
	Wraps      int
	Duplicates int

	Channels []string
	Done     bool
}

var overallDecodeStats = DecodeStats{}

var DecodeStatsMutex sync.RWMutex

func ReadDecodeStats() DecodeStats {
	DecodeStatsMutex.RLock()
	defer DecodeStatsMutex.RUnlock()
	return overallDecodeStats
}

func WriteDecodeStats(d DecodeStats) {
	DecodeStatsMutex.Lock()
	defer DecodeStatsMutex.Unlock()

	overallDecodeStats = d
}

type ChannelTableData struct {
	tview.TableContentReadOnly
}

func (c *ChannelTableData) GetRowCount() int {
	return len(ReadDecodeStats().Channels)
}

func (c *ChannelTableData) GetColumnCount() int {
	return 1
}

func (c *ChannelTableData) GetCell(row, column int) *tview.TableCell {
	chans := ReadDecodeStats().Channels
	if row >= len(chans) {
		return tview.NewTableCell("")
	}
	return tview.NewTableCell("[lightskyblue]" + chans[row])
}

type CensusTableData struct {
	tview.TableContentReadOnly
}

func (c *CensusTableData) GetRowCount() int {
	return 9
}

func (c *CensusTableData) GetColumnCount() int {
	return 2
}

func (c *CensusTableData) GetCell(row, column int) *tview.TableCell {
	s := ReadDecodeStats()
	switch row {
	case 0:
		if column == 0 {
			return tview.NewTableCell("Records read:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Records))
	case 1:
		if column == 0 {
			return tview.NewTableCell("Data records:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Data))
	case 2:
		if column == 0 {
			return tview.NewTableCell("Doppler observables:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Doppler))
	case 3:
		if column == 0 {
			return tview.NewTableCell("Range observables:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Range))
	case 4:
		if column == 0 {
			return tview.NewTableCell("Ramp intervals:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Ramps))
	case 5:
		if column == 0 {
			return tview.NewTableCell("Malformed records:")
		}
		color := tcell.ColorGreen
		if s.Malformed > 0 {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Malformed)).SetTextColor(color)
	case 6:
		if column == 0 {
			return tview.NewTableCell("Unknown record types:")
		}
		color := tcell.ColorGreen
		if s.Unknown > 0 {
			color = tcell.ColorYellow
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Unknown)).SetTextColor(color)
	case 7:
		if column == 0 {
			return tview.NewTableCell("Counter desyncs:")
		}
		color := tcell.ColorGreen
		if s.Desyncs > 0 {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(fmt.Sprintf("%d", s.Desyncs)).SetTextColor(color)
	case 8:
		if column == 0 {
			return tview.NewTableCell("Gaps / wraps / dups:")
		}
		return tview.NewTableCell(fmt.Sprintf("%d / %d / %d", s.Gaps, s.Wraps, s.Duplicates))
	default:
		return tview.NewTableCell("ERROR")
	}
}

// StartDecodeUI runs the live decode dashboard until the run finishes or
// the user quits with 'q'. done is closed by the decode goroutine.
func StartDecodeUI(done <-chan struct{}, tuiConf TuiConf) {
	app := tview.NewApplication()

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	var logMutex sync.Mutex
	LogOut.SetChangedFunc(func() {
		logMutex.Lock()
		LogOut.ScrollToEnd()
		app.Draw()
		logMutex.Unlock()
	})

	LogOut.SetBorder(true).SetTitle("Log Output")
	log.SetOutput(LogOut)

	gauge := tvxwidgets.NewPercentageModeGauge()
	gauge.SetTitle("File Progress")
	gauge.SetBorder(true)
	gauge.SetMaxValue(100)

	censusData := &CensusTableData{}
	censusTable := tview.NewTable().SetContent(censusData)
	censusTable.SetSelectable(false, false).SetBorder(false)

	channelData := &ChannelTableData{}
	channelTable := tview.NewTable().SetContent(channelData)
	channelTable.SetSelectable(true, false).SetBorder(false)

	channelBox := tview.NewFlex()
	channelBox.SetDirection(tview.FlexRow)
	channelBox.AddItem(channelTable, 0, 1, false)
	channelBox.SetTitle("Tracking Channels")
	channelBox.SetBorder(true)

	censusBox := tview.NewFlex().SetDirection(tview.FlexRow)
	censusBox.AddItem(censusTable, 0, 1, false)
	censusBox.SetBorder(true)
	censusBox.SetTitle("Decode Status")

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(gauge, 3, 0, false)
	leftCol.AddItem(censusBox, 0, 2, false)
	leftCol.AddItem(channelBox, 0, 3, false)

	page.AddItem(leftCol, 0, 2, false)
	if tuiConf.EnableLogOutput {
		page.AddItem(LogOut, 0, 3, false)
	}

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			app.Stop()
		}
		return event
	})

	refresh := tuiConf.RefreshMs
	if refresh <= 0 {
		refresh = 500
	}

	go func() {
		for {
			s := ReadDecodeStats()
			if s.BytesTotal > 0 {
				gauge.SetValue(int(s.BytesRead * 100 / s.BytesTotal))
			} else if s.Done {
				gauge.SetValue(100)
			}
			app.Draw()
			select {
			case <-done:
				// One last draw with the final numbers, then hand the
				// terminal back.
				s = ReadDecodeStats()
				if s.BytesTotal > 0 || s.Done {
					gauge.SetValue(100)
				}
				app.Draw()
				app.Stop()
				return
			case <-time.After(time.Duration(refresh) * time.Millisecond):
			}
		}
	}()

	if err := app.SetRoot(page, true).EnableMouse(false).SetFocus(channelTable).Run(); err != nil {
		log.Fatalf("Could not start UI: %v", err)
	}
}
