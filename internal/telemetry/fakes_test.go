package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"kiln_console/internal/models"
)

var errConnClosed = errors.New("use of closed network connection")

// fakeConn delivers queued messages until Close or Drop.
type fakeConn struct {
	msgs    chan string
	closed  chan struct{}
	dropped chan struct{}
	once    sync.Once
	dropMu  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:    make(chan string, 16),
		closed:  make(chan struct{}),
		dropped: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errConnClosed
	default:
	}
	select {
	case m := <-c.msgs:
		return 1, []byte(m), nil
	case <-c.dropped:
		return 0, nil, io.ErrUnexpectedEOF
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Drop simulates the peer going away.
func (c *fakeConn) Drop() { c.dropMu.Do(func() { close(c.dropped) }) }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	err   error
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no stream dialed")
		return nil
	}
}

// fakeSnapshotter serves results in order, repeating the last one. With
// hold set, Fetch waits for release or for its context.
type fakeSnapshotter struct {
	mu        sync.Mutex
	results   []SnapshotResult
	calls     int
	hold      chan struct{}
	cancelled chan struct{}
}

func (f *fakeSnapshotter) Fetch(ctx context.Context) SnapshotResult {
	f.mu.Lock()
	i := f.calls
	f.calls++
	hold := f.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			if f.cancelled != nil {
				close(f.cancelled)
			}
			return SnapshotResult{Activity: models.ActivityInactive}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return SnapshotResult{Activity: models.ActivityInactive}
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func (f *fakeSnapshotter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObserver struct {
	mu         sync.Mutex
	outcomes   map[string]int
	snapshots  []models.ProcessActivity
	reconnects int
	states     []models.ConnectionState
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{outcomes: map[string]int{}}
}

func (o *recordingObserver) LineProcessed(outcome string) {
	o.mu.Lock()
	o.outcomes[outcome]++
	o.mu.Unlock()
}

func (o *recordingObserver) SnapshotResolved(a models.ProcessActivity) {
	o.mu.Lock()
	o.snapshots = append(o.snapshots, a)
	o.mu.Unlock()
}

func (o *recordingObserver) ReconnectScheduled() {
	o.mu.Lock()
	o.reconnects++
	o.mu.Unlock()
}

func (o *recordingObserver) StateChanged(s models.ConnectionState) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordingObserver) RecordsChanged(int) {}

func (o *recordingObserver) reconnectCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reconnects
}

func (o *recordingObserver) outcome(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[name]
}
