//go:build linux

package affinity

import "golang.org/x/sys/unix"

// PinThreadToCore pins the calling OS thread to coreID. The caller must have
// already called runtime.LockOSThread so the goroutine cannot migrate to a
// different OS thread afterward.
func PinThreadToCore(coreID uint32) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(int(coreID))
	return unix.SchedSetaffinity(0, &set)
}
