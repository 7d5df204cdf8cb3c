//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux backend, built on epoll with edge-triggered
// registration (EPOLLET) matching original_source/src/runtime/orchestrator.cpp's
// run_worker_thread: listen fd and client fds are all registered edge
// triggered, with EPOLLRDHUP added so a peer half-close is visible without a
// subsequent read returning 0.
type epollPoller struct {
	epfd   int
	closed bool
}

// New returns a Poller backed by epoll.
func New() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd}, nil
}

func toEpollEvents(interest Interest) uint32 {
	ev := uint32(unix.EPOLLET | unix.EPOLLRDHUP)
	if interest&InterestReadable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&InterestWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Register(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Modify(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) Deregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(timeoutMS int, buf []Event) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	raw := make([]unix.EpollEvent, MaxEvents)
	n, err := unix.EpollWait(p.epfd, raw, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return buf[:0], nil
		}
		return nil, err
	}

	out := buf[:0]
	for i := 0; i < n; i++ {
		var flags EventFlags
		e := raw[i].Events
		if e&unix.EPOLLIN != 0 {
			flags |= Readable
		}
		if e&unix.EPOLLOUT != 0 {
			flags |= Writable
		}
		if e&unix.EPOLLRDHUP != 0 {
			flags |= PeerClosed
		}
		if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			flags |= Error
		}
		out = append(out, Event{FD: int(raw[i].Fd), Flags: flags})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}
