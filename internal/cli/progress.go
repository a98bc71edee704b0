package cli

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// replayProgressReporter draws a single-line spinner on stderr while a
// multi-cell run is in flight. Disabled when stderr is not a terminal
// or the command emits JSON.
type replayProgressReporter struct {
	enabled bool
	label   string
	total   int
	start   time.Time
	spinner int
	lastLen int
}

func newReplayProgressReporter(label string, total int, asJSON bool) *replayProgressReporter {
	stat, err := os.Stderr.Stat()
	enabled := err == nil && (stat.Mode()&os.ModeCharDevice) != 0 && !asJSON
	return &replayProgressReporter{
		enabled: enabled,
		label:   label,
		total:   total,
		start:   time.Now(),
	}
}

func (r *replayProgressReporter) Update(cell int, done int) {
	if !r.enabled {
		return
	}
	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++
	r.printStatus(fmt.Sprintf("%s %s %d/%d ran cell %d", frame, r.label, done, r.total, cell))
}

func (r *replayProgressReporter) Done(count int) {
	if !r.enabled {
		return
	}
	elapsed := time.Since(r.start).Round(time.Millisecond)
	r.printStatus(fmt.Sprintf("%s complete (%d cells in %s)", r.label, count, elapsed))
	fmt.Fprintln(os.Stderr)
}

func (r *replayProgressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(os.Stderr, "\r%s", status)
}
