package ledger

import (
	"fmt"
	"os"
	"path/filepath"
)

// acquireLock takes an exclusive advisory lock on a sidecar lock file
// next to the store. It blocks until the lock is available and returns
// a release func.
func (l *Ledger) acquireLock() (func(), error) {
	lockPath := l.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}

	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
