//go:build !linux

package affinity

// PinThreadToCore is a no-op outside Linux, matching core.cpp's explicit
// no-op branch for macOS (thread affinity is not exposed there).
func PinThreadToCore(coreID uint32) error {
	return nil
}
