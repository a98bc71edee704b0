// Package ledger persists which cell code has actually executed.
//
// The backing store is a single JSON file keyed by canonical document
// path and cell index. Writes are atomic (temp file + rename) and
// serialized across processes with an advisory file lock, so concurrent
// invocations against the same document never lose each other's records.
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"lukechampine.com/blake3"

	"github.com/jxucoder/dasa/internal/fileutil"
)

// ErrRecordFailed marks a write failure: the execution happened, only
// the bookkeeping could not be persisted.
var ErrRecordFailed = errors.New("could not persist execution record")

// Entry records one successful cell execution.
type Entry struct {
	CodeHash   string    `json:"code_hash"`
	RecordedAt time.Time `json:"recorded_at"`
}

type documentState struct {
	Cells map[string]Entry `json:"cells"`
}

type store map[string]*documentState

// Ledger is an explicitly-instantiated execution record with an
// injected storage path. There is no ambient global instance.
type Ledger struct {
	path string
}

// Open returns a ledger backed by the file at path. The file is created
// lazily on first Record.
func Open(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Record stores the content hash of source for (docPath, cellIndex),
// replacing any prior entry. The read-modify-write cycle runs under an
// exclusive file lock so two processes recording different cells of the
// same document both persist.
func (l *Ledger) Record(docPath string, cellIndex int, source string) error {
	key := DocumentKey(docPath)

	unlock, err := l.acquireLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	defer unlock()

	s := l.load()
	doc := s[key]
	if doc == nil {
		doc = &documentState{Cells: make(map[string]Entry)}
		s[key] = doc
	}
	if doc.Cells == nil {
		doc.Cells = make(map[string]Entry)
	}
	doc.Cells[strconv.Itoa(cellIndex)] = Entry{
		CodeHash:   HashSource(source),
		RecordedAt: time.Now().UTC(),
	}

	if err := l.save(s); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	return nil
}

// IsStale reports whether (docPath, cellIndex) has no entry or an entry
// whose hash differs from the hash of currentSource.
func (l *Ledger) IsStale(docPath string, cellIndex int, currentSource string) bool {
	entry, ok := l.lookup(docPath, cellIndex)
	if !ok {
		return true
	}
	return entry.CodeHash != HashSource(currentSource)
}

// WasEverExecuted reports whether an entry exists for (docPath,
// cellIndex), regardless of staleness.
func (l *Ledger) WasEverExecuted(docPath string, cellIndex int) bool {
	_, ok := l.lookup(docPath, cellIndex)
	return ok
}

// Entries returns all recorded entries for a document, keyed by cell index.
func (l *Ledger) Entries(docPath string) map[int]Entry {
	key := DocumentKey(docPath)
	doc := l.load()[key]
	if doc == nil {
		return nil
	}

	out := make(map[int]Entry, len(doc.Cells))
	for rawIndex, entry := range doc.Cells {
		idx, err := strconv.Atoi(rawIndex)
		if err != nil {
			continue
		}
		out[idx] = entry
	}
	return out
}

// Documents returns the canonical keys of all tracked documents, sorted.
func (l *Ledger) Documents() []string {
	s := l.load()
	out := make([]string, 0, len(s))
	for key := range s {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// ResetDocument removes all entries for one document.
func (l *Ledger) ResetDocument(docPath string) error {
	key := DocumentKey(docPath)

	unlock, err := l.acquireLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	defer unlock()

	s := l.load()
	if _, ok := s[key]; !ok {
		return nil
	}
	delete(s, key)
	if err := l.save(s); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	return nil
}

// Reset removes the entire ledger.
func (l *Ledger) Reset() error {
	unlock, err := l.acquireLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	defer unlock()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	return nil
}

func (l *Ledger) lookup(docPath string, cellIndex int) (Entry, bool) {
	key := DocumentKey(docPath)
	doc := l.load()[key]
	if doc == nil {
		return Entry{}, false
	}
	entry, ok := doc.Cells[strconv.Itoa(cellIndex)]
	return entry, ok
}

// load reads the backing store. A missing file is an empty ledger; a
// corrupt file degrades to an empty ledger with a warning, because
// losing history is preferable to blocking all functionality.
func (l *Ledger) load() store {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("ledger unreadable, treating as empty", "path", l.path, "error", err)
		}
		return make(store)
	}

	var s store
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("ledger corrupt, treating as empty", "path", l.path, "error", err)
		return make(store)
	}
	if s == nil {
		s = make(store)
	}
	return s
}

func (l *Ledger) save(s store) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(l.path, data, 0644)
}

// HashSource returns the stable content hash used for staleness
// comparison: hex blake3, truncated.
func HashSource(source string) string {
	sum := blake3.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:16]
}

// DocumentKey canonicalizes a document path so relative and absolute
// references to the same file collapse to one ledger key.
func DocumentKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
