package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectorRendersRegisteredMetrics(t *testing.T) {
	c := NewCollector(0)
	c.ConnectionAccepted()
	c.SetActiveConnections(3)

	body, contentType := c.Render()
	require.Contains(t, contentType, "text/plain")
	text := string(body)
	require.Contains(t, text, "titan_connections_accepted_total")
	require.Contains(t, text, `worker="0"`)
	require.Contains(t, text, `titan_connections_active{worker="0"} 3`)
}

func TestCollectorLabelsByWorkerID(t *testing.T) {
	c0 := NewCollector(0)
	c1 := NewCollector(1)
	c0.ConnectionAccepted()
	c1.ConnectionAccepted()

	body0, _ := c0.Render()
	body1, _ := c1.Render()
	require.True(t, strings.Contains(string(body0), `worker="0"`))
	require.True(t, strings.Contains(string(body1), `worker="1"`))
}

func TestConnectionClosedRecordsByReason(t *testing.T) {
	c := NewCollector(0)
	c.ConnectionClosed("peer_closed")
	c.ConnectionClosed("peer_closed")
	c.ConnectionClosed("error")

	body, _ := c.Render()
	text := string(body)
	require.Contains(t, text, `reason="peer_closed",worker="0"} 2`)
	require.Contains(t, text, `reason="error",worker="0"} 1`)
}

func TestRevocationMetricsTrackAppliedAndSize(t *testing.T) {
	c := NewCollector(0)
	c.RevocationApplied(2)
	c.SetRevocationListSize(2)

	body, _ := c.Render()
	text := string(body)
	require.Contains(t, text, "titan_revocations_applied_total")
	require.Contains(t, text, `titan_revocation_list_size{worker="0"} 2`)
}

func TestEventLoopIterationIncrements(t *testing.T) {
	c := NewCollector(0)
	c.EventLoopIteration()
	c.EventLoopIteration()

	body, _ := c.Render()
	require.Contains(t, string(body), "titan_event_loop_iterations_total")
}

func TestBackendEventRecordsByKind(t *testing.T) {
	c := NewCollector(0)
	c.BackendEvent("readable")
	c.BackendEvent("error")

	body, _ := c.Render()
	text := string(body)
	require.Contains(t, text, `kind="readable"`)
	require.Contains(t, text, `kind="error"`)
}
