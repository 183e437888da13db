//go:build windows

package chatconfig

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// lockExclusive blocks until it holds a LockFileEx byte lock on lockPath.
func lockExclusive(lockPath string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	handle := windows.Handle(f.Fd())
	var ol windows.Overlapped
	if err := windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &ol); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() error {
		var ol windows.Overlapped
		_ = windows.UnlockFileEx(handle, 0, 1, 0, &ol)
		return f.Close()
	}, nil
}
