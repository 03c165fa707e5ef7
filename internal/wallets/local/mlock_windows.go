//go:build windows

package local

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// pin keeps b out of the page file while key material is in it. The
// returned func wipes b and releases the lock.
func pin(b []byte) func() {
	if len(b) == 0 {
		return func() {}
	}
	addr, size := uintptr(unsafe.Pointer(&b[0])), uintptr(len(b))
	locked := windows.VirtualLock(addr, size) == nil
	return func() {
		zero(b)
		if locked {
			_ = windows.VirtualUnlock(addr, size)
		}
	}
}
