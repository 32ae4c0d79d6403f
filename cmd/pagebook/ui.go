package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/pagebook/internal/domain"
)

// UI provides user-friendly output utilities.
type UI struct {
	progress *mpb.Progress
	out      io.Writer

	mu       sync.Mutex
	bars     []*mpb.Bar
	ocrBar   *progressbar.ProgressBar
	batchBar *mpb.Bar
}

// NewUI creates a new UI instance.
func NewUI(noColor bool) *UI {
	if noColor {
		color.NoColor = true
	}
	return &UI{
		progress: mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr)),
		out:      os.Stdout,
	}
}

// Close stops every bar and waits for the renderer to flush.
func (ui *UI) Close() {
	ui.mu.Lock()
	for _, b := range ui.bars {
		if !b.Completed() {
			b.Abort(false)
		}
	}
	if ui.ocrBar != nil {
		_ = ui.ocrBar.Finish()
	}
	ui.mu.Unlock()
	ui.progress.Wait()
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(ui.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(ui.out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(ui.out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	color.New(color.FgBlue).Fprintf(ui.out, "→ %s\n", fmt.Sprintf(format, args...))
}

// ProgressBar creates a new progress bar.
func (ui *UI) ProgressBar(name string, total int64) *mpb.Bar {
	bar := ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 12}),
				" done",
			),
		),
	)
	ui.bars = append(ui.bars, bar)
	return bar
}

// Spinner starts an indeterminate spinner; call the returned function to stop it.
func (ui *UI) Spinner(message string) (stop func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	s.Start()
	return s.Stop
}

func newOCRBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription("Recognizing text"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Follow renders session events until the channel is closed.
func (ui *UI) Follow(events <-chan domain.StreamEvent, done chan<- struct{}) {
	defer close(done)
	for event := range events {
		switch event.Type {
		case domain.EventBatchProgress:
			if p, ok := event.Payload.(domain.Progress); ok {
				ui.batchProgress(p)
			}

		case domain.EventOCRProgress:
			if p, ok := event.Payload.(domain.Progress); ok {
				ui.ocrProgress(p)
			}

		case domain.EventPageRendered:
			if verbose {
				ui.Step("Page %d rendered (%v)", event.PageNumber, event.Payload)
			}

		case domain.EventPageFailed:
			ui.Warning("Page %d failed: %v", event.PageNumber, event.Payload)

		case domain.EventError:
			// The failing command returns the same error to main.

		case domain.EventStart, domain.EventComplete:
			if verbose {
				ui.Info("%v", event.Payload)
			}
		}
	}
}

func (ui *UI) batchProgress(p domain.Progress) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.batchBar == nil || ui.batchBar.Completed() {
		ui.batchBar = ui.ProgressBar("Converting", int64(p.Total))
	}
	ui.batchBar.SetCurrent(int64(p.Done))
}

func (ui *UI) ocrProgress(p domain.Progress) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.ocrBar == nil {
		ui.ocrBar = newOCRBar(p.Total)
	}
	_ = ui.ocrBar.Set(p.Done)
}
