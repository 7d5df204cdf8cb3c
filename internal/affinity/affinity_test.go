package affinity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCPUCountIsPositive(t *testing.T) {
	require.Greater(t, CPUCount(), 0)
}

func TestPinThreadToCoreDoesNotError(t *testing.T) {
	// Core 0 always exists; this exercises the platform-specific path
	// without asserting on actual scheduler placement.
	require.NoError(t, PinThreadToCore(0))
}
