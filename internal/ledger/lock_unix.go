//go:build unix

package ledger

import (
	"os"
	"syscall"
)

// lockFile acquires an exclusive advisory lock via flock(2), blocking
// until the lock is available. Locks are released on close or process
// exit, so a crashed writer never wedges the ledger.
func lockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
