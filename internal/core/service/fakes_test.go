package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
)

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	mu      sync.Mutex
	events  []domain.Event
	pings   int
	closed  bool
	sendErr error
}

func (t *fakeTransport) Send(ev domain.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.closed {
		return errTransportClosed
	}
	t.events = append(t.events, ev)
	return nil
}

func (t *fakeTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	t.pings++
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) Events() []domain.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Event(nil), t.events...)
}

func (t *fakeTransport) Last() domain.Event {
	evs := t.Events()
	if len(evs) == 0 {
		return domain.Event{}
	}
	return evs[len(evs)-1]
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) Pings() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pings
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type receiveResult struct {
	ev  domain.Event
	err error
}

// fakeConn is a scripted port.RelayConn: tests push inbound events on in.
type fakeConn struct {
	in        chan receiveResult
	mu        sync.Mutex
	sent      []domain.Signal
	sendErr   error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan receiveResult, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, ev.Payload.(domain.Signal))
	return nil
}

func (c *fakeConn) Receive() (domain.Event, error) {
	select {
	case r := <-c.in:
		return r.ev, r.err
	case <-c.closed:
		return domain.Event{}, errTransportClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Sent() []domain.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Signal(nil), c.sent...)
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(ev domain.Event) { c.in <- receiveResult{ev: ev} }

type dialResult struct {
	conn port.RelayConn
	err  error
}

// fakeDialer hands out whatever the test sends on results; each Dial blocks
// until one arrives or ctx ends.
type fakeDialer struct {
	results chan dialResult
	mu      sync.Mutex
	names   []string
}

func newFakeDialer() *fakeDialer { return &fakeDialer{results: make(chan dialResult, 8)} }

func (d *fakeDialer) Dial(ctx context.Context, displayName string) (port.RelayConn, error) {
	d.mu.Lock()
	d.names = append(d.names, displayName)
	d.mu.Unlock()

	select {
	case r := <-d.results:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}
