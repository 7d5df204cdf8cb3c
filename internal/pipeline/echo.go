package pipeline

import (
	"github.com/hackstrix/titan/internal/corestate"
	"github.com/hackstrix/titan/internal/revocation"
	"github.com/hackstrix/titan/internal/socketutil"
	"golang.org/x/sys/unix"
)

// EchoPipeline is the default Pipeline: it terminates the client connection
// itself and echoes back whatever bytes it reads. It does not inspect
// bearer tokens or consult the revocation list. It exists to exercise the worker loop end to end
// (spec.md §6 names router/upstream-selection/circuit-breaking as external
// collaborators out of scope for the core) and is not a substitute for a
// real proxying pipeline.
type EchoPipeline struct {
	listenFD int
	list     *revocation.List
	queue    *revocation.Queue
}

// NewEchoPipeline returns a Pipeline listening on listenFD. list and queue
// are the worker's revocation collaborators; EchoPipeline does not parse
// bearer tokens itself (that's a real pipeline's job) but holds them so a
// future token-aware pipeline built on this one has them ready to consult.
func NewEchoPipeline(listenFD int, list *revocation.List, queue *revocation.Queue) *EchoPipeline {
	return &EchoPipeline{listenFD: listenFD, list: list, queue: queue}
}

func (p *EchoPipeline) OnAccept(info AcceptInfo) {}

// OnReadable drains fd until EAGAIN, echoing each chunk back. A read of zero
// bytes or ECONNRESET is treated as the peer having gone away; the caller
// (worker loop) is responsible for invoking OnClose afterward. The worker
// event loop folds queue into list once per iteration before dispatching any
// reads; this method itself does not read the list.
func (p *EchoPipeline) OnReadable(fd int) {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			return
		}
		if n <= 0 {
			return
		}
		writeAll(fd, buf[:n])
	}
}

func (p *EchoPipeline) OnClose(fd int) {
	socketutil.CloseFD(fd)
}

func (p *EchoPipeline) OnBackendEvent(ev BackendEvent) {}

func (p *EchoPipeline) ProcessBackendOperations() {}

func (p *EchoPipeline) ListenFD() int { return p.listenFD }

// BackendReadinessFD returns -1: EchoPipeline has no backend connections to
// watch.
func (p *EchoPipeline) BackendReadinessFD() int { return -1 }

// UpstreamManager returns nil: EchoPipeline exposes no metrics source.
func (p *EchoPipeline) UpstreamManager() corestate.MetricsSource { return nil }

func writeAll(fd int, buf []byte) {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			return
		}
		buf = buf[n:]
	}
}
