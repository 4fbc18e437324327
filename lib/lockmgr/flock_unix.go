//go:build unix

package lockmgr

import (
	"golang.org/x/sys/unix"
	"os"
)

// openUnit opens the lock unit at path, creating it if requested
func openUnit(path string, create bool, perm os.FileMode) (*os.File, error) {
	flag := os.O_RDONLY
	if create {
		flag = os.O_RDWR | os.O_CREATE
	}
	return os.OpenFile(path, flag, perm)
}

// lockFile blocks until flock(2) grants the lock. Interrupted calls are retried.
func lockFile(f *os.File, mode Mode) error {
	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
