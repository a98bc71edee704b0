// Package session holds cross-invocation state that is not part of the
// execution ledger: an append-only activity log and background job
// bookkeeping.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jxucoder/dasa/internal/fileutil"
)

// Log is an append-only plain-text activity log. Lines are
// timestamped and never rewritten, so it doubles as a crude audit
// trail of what ran when.
type Log struct {
	path string
}

// OpenLog returns a log rooted at dir (the project state directory).
func OpenLog(dir string) *Log {
	return &Log{path: filepath.Join(dir, "log")}
}

// Path returns the backing file path.
func (l *Log) Path() string { return l.path }

// Append writes one event line. source names the component emitting
// the event (run, replay, job).
func (l *Log) Append(source, message string) error {
	line := fmt.Sprintf("%s [%s] %s",
		time.Now().UTC().Format(time.RFC3339),
		source,
		strings.ReplaceAll(message, "\n", " "))
	if err := fileutil.AppendLine(l.path, line); err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	return nil
}

// Recent returns up to n most recent lines, oldest first. A missing
// log file is an empty history, not an error.
func (l *Log) Recent(n int) ([]string, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
