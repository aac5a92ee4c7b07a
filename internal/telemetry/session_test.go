package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln_console/internal/models"
)

const (
	testBaseURL = "http://kiln/engine/running"
	waitFor     = 2 * time.Second
	tick        = 5 * time.Millisecond
)

type harness struct {
	session  *Session
	clock    *clockwork.FakeClock
	dialer   *fakeDialer
	snaps    *fakeSnapshotter
	observer *recordingObserver
}

func newHarness(t *testing.T, results ...SnapshotResult) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClock(),
		dialer:   newFakeDialer(),
		snaps:    &fakeSnapshotter{results: results},
		observer: newRecordingObserver(),
	}
	s, err := NewSession(Config{BaseURL: testBaseURL},
		WithClock(h.clock),
		WithDialer(h.dialer),
		WithSnapshotter(h.snaps),
		WithObserver(h.observer),
	)
	require.NoError(t, err)
	h.session = s
	t.Cleanup(s.Stop)
	return h
}

func (h *harness) waitState(t *testing.T, want models.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.session.View().State == want }, waitFor, tick,
		"state %s, want %s", h.session.View().State, want)
}

func (h *harness) waitLen(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.session.View().Records) == want }, waitFor, tick)
}

// waitTimer blocks until the reconnect timer is armed on the fake clock.
func (h *harness) waitTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Config{})
	assert.ErrorIs(t, err, ErrNoBaseURL)

	_, err = NewSession(Config{BaseURL: "ftp://kiln/engine/running"})
	assert.ErrorIs(t, err, errUnsupportedScheme)

	s, err := NewSession(Config{BaseURL: "https://kiln/engine/running"})
	require.NoError(t, err)
	assert.Equal(t, "wss://kiln/engine/running/logws", s.StreamURL())
	assert.Equal(t, "https://kiln/engine/running/log", s.SnapshotURL())
	assert.Equal(t, DefaultReconnectDelay, s.cfg.ReconnectDelay)
	assert.Equal(t, models.StateIdle, s.View().State)
}

func TestSession_SnapshotThenStreamThenSentinel(t *testing.T) {
	h := newHarness(t, activeSnapshot(240, row(120), row(180), row(240)))

	h.session.Start(context.Background())
	conn := h.dialer.next(t)
	h.waitState(t, models.StateOpen)

	v := h.session.View()
	assert.True(t, v.Connected)
	assert.False(t, v.NoProcess)
	assert.False(t, v.Loading)
	assert.Equal(t, []int64{120, 180, 240}, timestamps(v.Records))

	conn.msgs <- models.LogHeader
	conn.msgs <- row(235)
	require.Eventually(t, func() bool { return h.session.View().Stats.Stale == 1 }, waitFor, tick)
	assert.Len(t, h.session.View().Records, 3)

	conn.msgs <- row(300)
	h.waitLen(t, 4)
	v = h.session.View()
	assert.Equal(t, []int64{120, 180, 240, 300}, timestamps(v.Records))
	require.NotNil(t, v.LastTimestamp)
	assert.Equal(t, int64(300), *v.LastTimestamp)
	assert.Contains(t, v.CSV, row(300))

	conn.msgs <- models.NoProgramRunning
	h.waitState(t, models.StateClosedManual)

	v = h.session.View()
	assert.Empty(t, v.Records)
	assert.Empty(t, v.CSV)
	assert.True(t, v.NoProcess)
	assert.False(t, v.Connected)
	assert.Equal(t, models.ActivityInactive, v.Activity)
	assert.True(t, conn.isClosed())

	assert.Equal(t, 1, h.dialer.dials())
	assert.Equal(t, 0, h.observer.reconnectCount())
	assert.Equal(t, 1, h.observer.outcome("stale"))
	assert.Equal(t, 1, h.observer.outcome("sentinel"))
}

func TestSession_InactiveSnapshotDoesNotDial(t *testing.T) {
	h := newHarness(t, SnapshotResult{Activity: models.ActivityInactive})

	h.session.Start(context.Background())
	require.Eventually(t, func() bool { return h.session.View().NoProcess }, waitFor, tick)

	v := h.session.View()
	assert.Equal(t, models.StateIdle, v.State)
	assert.False(t, v.Loading)
	assert.Empty(t, v.Records)
	assert.Equal(t, 0, h.dialer.dials())
}

func TestSession_MultiLineMessage(t *testing.T) {
	h := newHarness(t, activeSnapshot(0))

	h.session.Start(context.Background())
	conn := h.dialer.next(t)
	conn.msgs <- models.LogHeader + "\n" + row(60) + "\n" + row(120) + "\n"
	h.waitLen(t, 2)
}

func TestSession_ReconnectsAfterUnexpectedClose(t *testing.T) {
	h := newHarness(t, activeSnapshot(60, row(60)))

	h.session.Start(context.Background())
	first := h.dialer.next(t)
	h.waitState(t, models.StateOpen)

	first.Drop()
	h.waitState(t, models.StateClosedUnexpected)
	h.waitTimer(t)
	assert.Equal(t, 1, h.observer.reconnectCount())

	h.clock.Advance(DefaultReconnectDelay - time.Millisecond)
	assert.Equal(t, 1, h.dialer.dials())

	h.clock.Advance(time.Millisecond)
	second := h.dialer.next(t)
	h.waitState(t, models.StateOpen)
	assert.Equal(t, 2, h.dialer.dials())

	// The log survives the reconnect; replayed rows are dropped.
	second.msgs <- row(60)
	second.msgs <- row(120)
	h.waitLen(t, 2)
	assert.Equal(t, []int64{60, 120}, timestamps(h.session.View().Records))
}

func TestSession_DialFailureSchedulesReconnect(t *testing.T) {
	h := newHarness(t, activeSnapshot(0))
	h.dialer.setErr(errors.New("connection refused"))

	h.session.Start(context.Background())
	h.waitState(t, models.StateClosedUnexpected)
	h.waitTimer(t)

	h.dialer.setErr(nil)
	h.clock.Advance(DefaultReconnectDelay)
	h.dialer.next(t)
	h.waitState(t, models.StateOpen)
}

func TestSession_StopCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t, activeSnapshot(0))

	h.session.Start(context.Background())
	h.dialer.next(t).Drop()
	h.waitState(t, models.StateClosedUnexpected)
	h.waitTimer(t)

	h.session.Stop()
	assert.Equal(t, models.StateTerminated, h.session.View().State)

	h.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.dials())
}

func TestSession_StopClosesOpenStream(t *testing.T) {
	h := newHarness(t, activeSnapshot(0))

	h.session.Start(context.Background())
	conn := h.dialer.next(t)
	h.waitState(t, models.StateOpen)

	h.session.Stop()
	assert.True(t, conn.isClosed())
	assert.Equal(t, models.StateTerminated, h.session.View().State)
	assert.Equal(t, 0, h.observer.reconnectCount())
}

func TestSession_StopDuringSnapshot(t *testing.T) {
	h := newHarness(t, activeSnapshot(10, row(10)))
	h.snaps.hold = make(chan struct{})
	h.snaps.cancelled = make(chan struct{})

	h.session.Start(context.Background())
	require.Eventually(t, func() bool {
		return h.snaps.count() == 1 && h.session.View().Loading
	}, waitFor, tick)

	h.session.Stop()

	select {
	case <-h.snaps.cancelled:
	default:
		t.Fatal("snapshot request not cancelled")
	}
	v := h.session.View()
	assert.Equal(t, models.StateTerminated, v.State)
	assert.Empty(t, v.Records)
	assert.Equal(t, 0, h.dialer.dials())
}

func TestSession_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, activeSnapshot(0))
	h.session.Stop()

	h.session.Start(context.Background())
	h.dialer.next(t)
	h.session.Stop()
	h.session.Stop()
	assert.Equal(t, models.StateTerminated, h.session.View().State)
}

func TestSession_RestartAfterStop(t *testing.T) {
	h := newHarness(t, activeSnapshot(60, row(60)))

	h.session.Start(context.Background())
	h.dialer.next(t)
	h.waitState(t, models.StateOpen)
	h.session.Stop()

	h.session.Start(context.Background())
	h.dialer.next(t)
	h.waitState(t, models.StateOpen)
	assert.Equal(t, 2, h.snaps.count())
	assert.Len(t, h.session.View().Records, 1)
}

func TestSession_StartWhileOpenKeepsStream(t *testing.T) {
	h := newHarness(t, activeSnapshot(60, row(60)), activeSnapshot(120, row(60), row(120)))

	h.session.Start(context.Background())
	conn := h.dialer.next(t)
	h.waitState(t, models.StateOpen)

	h.session.Start(context.Background())
	h.waitLen(t, 2)
	assert.Equal(t, models.StateOpen, h.session.View().State)
	assert.Equal(t, 1, h.dialer.dials())
	assert.False(t, conn.isClosed())
}

func TestSession_ContextCancelTearsDown(t *testing.T) {
	h := newHarness(t, activeSnapshot(0))
	ctx, cancel := context.WithCancel(context.Background())

	h.session.Start(ctx)
	conn := h.dialer.next(t)
	h.waitState(t, models.StateOpen)

	cancel()
	h.waitState(t, models.StateTerminated)
	require.Eventually(t, conn.isClosed, waitFor, tick)
}

func TestSession_PublishesToSinks(t *testing.T) {
	var (
		mu    sync.Mutex
		views []View
	)
	sink := SinkFunc(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	s, err := NewSession(Config{BaseURL: testBaseURL},
		WithDialer(newFakeDialer()),
		WithSnapshotter(&fakeSnapshotter{results: []SnapshotResult{{Activity: models.ActivityInactive}}}),
		WithSink(sink),
	)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.View().NoProcess }, waitFor, tick)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	assert.True(t, views[0].Loading, "first view is published while the snapshot is outstanding")
	assert.Equal(t, models.StateTerminated, views[len(views)-1].State)
}

func TestSession_PublishesOnlyChanges(t *testing.T) {
	var (
		mu    sync.Mutex
		views []View
	)
	sink := SinkFunc(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	dialer := newFakeDialer()
	s, err := NewSession(Config{BaseURL: testBaseURL},
		WithClock(clockwork.NewFakeClock()),
		WithDialer(dialer),
		WithSnapshotter(&fakeSnapshotter{results: []SnapshotResult{activeSnapshot(60, row(60))}}),
		WithSink(sink),
	)
	require.NoError(t, err)

	s.Start(context.Background())
	conn := dialer.next(t)
	conn.msgs <- models.LogHeader + "\n\n" + models.LogHeader
	conn.msgs <- row(120)
	conn.msgs <- "\n"
	conn.msgs <- row(120)
	conn.msgs <- row(180)
	require.Eventually(t, func() bool { return len(s.View().Records) == 3 }, waitFor, tick)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	for i, v := range views {
		assert.Len(t, v.Records, v.Stats.Accepted, "view %d records changed after publish", i)
		if i > 0 {
			assert.NotEqual(t, views[i-1], v, "view %d repeats the previous one", i)
		}
	}
	assert.Equal(t, []int64{60, 120, 180}, timestamps(views[len(views)-1].Records))
}
