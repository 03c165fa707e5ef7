//go:build !windows

package local

import "golang.org/x/sys/unix"

// pin keeps b out of swap while key material is in it. The returned func
// wipes b and releases the lock.
func pin(b []byte) func() {
	locked := len(b) > 0 && unix.Mlock(b) == nil
	return func() {
		zero(b)
		if locked {
			_ = unix.Munlock(b)
		}
	}
}
