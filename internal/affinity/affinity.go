// Package affinity pins the calling OS thread to a logical CPU core, per
// original_source/src/core/core.{hpp,cpp}. Go's goroutine scheduler makes
// this only approximate: it must be paired with runtime.LockOSThread by the
// caller so the pin outlives a goroutine-to-thread rebind.
package affinity

import "runtime"

// CPUCount returns the number of logical CPUs available, mirroring
// get_cpu_count's std::thread::hardware_concurrency().
func CPUCount() int {
	return runtime.NumCPU()
}
