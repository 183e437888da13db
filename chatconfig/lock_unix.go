//go:build !windows

package chatconfig

import (
	"os"
	"path/filepath"
	"syscall"
)

// lockExclusive blocks until it holds an flock on lockPath.
func lockExclusive(lockPath string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())
	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() error {
		_ = syscall.Flock(fd, syscall.LOCK_UN)
		return f.Close()
	}, nil
}
