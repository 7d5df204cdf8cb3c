//go:build darwin

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/Darwin backend. Read and write interest are two
// independent kqueue filters (EVFILT_READ / EVFILT_WRITE), so Register and
// Modify translate an Interest mask into an EV_ADD/EV_DELETE pair, matching
// original_source/src/runtime/orchestrator.cpp's kqueue branch.
type kqueuePoller struct {
	kq     int
	closed bool
}

// New returns a Poller backed by kqueue.
func New() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return &kqueuePoller{kq: fd}, nil
}

func (p *kqueuePoller) changeFilter(fd int, filter int16, flags uint16) error {
	kev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (p *kqueuePoller) Register(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if interest&InterestReadable != 0 {
		if err := p.changeFilter(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR); err != nil {
			return err
		}
	}
	if interest&InterestWritable != 0 {
		if err := p.changeFilter(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR); err != nil {
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) Modify(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	// kqueue has no in-place modify: delete both filters then re-add the
	// requested set. Deleting a filter that was never added is harmless
	// (ENOENT is not treated as fatal here).
	_ = p.changeFilter(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = p.changeFilter(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return p.Register(fd, interest)
}

func (p *kqueuePoller) Deregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	_ = p.changeFilter(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = p.changeFilter(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMS int, buf []Event) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	raw := make([]unix.Kevent_t, MaxEvents)
	ts := unix.NsecToTimespec(time.Duration(timeoutMS) * time.Millisecond)

	n, err := unix.Kevent(p.kq, nil, raw, &ts)
	if err != nil {
		if err == unix.EINTR {
			return buf[:0], nil
		}
		return nil, err
	}

	out := buf[:0]
	for i := 0; i < n; i++ {
		var flags EventFlags
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			flags |= Readable
		case unix.EVFILT_WRITE:
			flags |= Writable
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			flags |= PeerClosed
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			flags |= Error
		}
		out = append(out, Event{FD: int(raw[i].Ident), Flags: flags})
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.kq)
}
