package engine

import (
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// flock takes a whole-file exclusive lock so no other process can write the
// target while we own it. With timeout 0 a held lock fails immediately.
func flock(fd uintptr, timeout time.Duration) error {
	var t time.Time
	for {
		if t.IsZero() {
			t = time.Now()
		} else if timeout <= 0 || time.Since(t) > timeout {
			return errors.New("failed to acquire file lock")
		}
		err := syscall.Flock(int(fd), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		} else if err != syscall.EWOULDBLOCK {
			return err
		}
		// Wait for a bit and try again.
		time.Sleep(50 * time.Millisecond)
	}
}

func funlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
