// Package telemetry follows a running kiln program: it fetches the log
// recorded so far, tails the live stream, and reconciles both into one
// ordered, duplicate-free log.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"kiln_console/internal/logger"
	"kiln_console/internal/models"
)

const (
	DefaultReconnectDelay  = 5 * time.Second
	DefaultSnapshotTimeout = 10 * time.Second

	inboxSize = 256
)

var ErrNoBaseURL = errors.New("control unit base url is required")

// Config configures a Session.
type Config struct {
	BaseURL         string        // control unit endpoint, e.g. http://kiln:8090/engine/running
	ReconnectDelay  time.Duration // wait after an unexpected close
	SnapshotTimeout time.Duration
}

// Option customizes a Session.
type Option func(*Session)

func WithClock(c clockwork.Clock) Option { return func(s *Session) { s.clock = c } }

func WithDialer(d Dialer) Option { return func(s *Session) { s.dialer = d } }

func WithSnapshotter(f Snapshotter) Option { return func(s *Session) { s.snapshots = f } }

func WithLogger(l *logger.Logger) Option { return func(s *Session) { s.log = logger.OrNop(l) } }

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSink adds a receiver of published views. May be given more than once.
func WithSink(sink Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// Session is the lifecycle controller of one live execution view. Start
// acquires the snapshot and, when a program is running, opens the stream;
// Stop tears everything down. All state lives on a single loop goroutine;
// transports and snapshot requests post their results back to it.
type Session struct {
	cfg       Config
	streamURL string
	clock     clockwork.Clock
	dialer    Dialer
	snapshots Snapshotter
	observer  Observer
	sinks     []Sink
	log       *logger.Logger

	mu sync.Mutex // serializes Start and Stop
	rt *loop

	viewMu sync.RWMutex
	view   View
}

// NewSession validates cfg and applies defaults.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	streamURL, err := StreamURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       cfg,
		streamURL: streamURL,
		clock:     clockwork.NewRealClock(),
		dialer:    NewWebSocketDialer(),
		observer:  nopObserver{},
		log:       logger.Nop(),
		view:      View{State: models.StateIdle, Activity: models.ActivityUnknown},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshots == nil {
		s.snapshots = NewSnapshotFetcher(cfg.BaseURL, &http.Client{Timeout: cfg.SnapshotTimeout}, s.log)
	}
	return s, nil
}

// StreamURL returns the derived streaming endpoint.
func (s *Session) StreamURL() string { return s.streamURL }

// SnapshotURL returns the snapshot endpoint.
func (s *Session) SnapshotURL() string { return SnapshotURL(s.cfg.BaseURL) }

// Start begins a new acquisition cycle. Calling it while running re-reads
// the snapshot and keeps the open stream. Cancelling ctx has the same
// effect as Stop, except that it does not wait.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rt != nil && s.rt.exited() {
		s.rt.wg.Wait()
		s.rt = nil
	}
	if s.rt == nil {
		s.rt = s.newLoop(ctx)
		go s.run(s.rt)
	}
	s.rt.post(evStart{})
}

// Stop releases the stream, the pending snapshot and any scheduled
// reconnect. It is idempotent and returns only after every goroutine the
// session started has finished.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt := s.rt
	if rt == nil {
		return
	}
	s.rt = nil
	rt.stopOnce.Do(func() { close(rt.stop) })
	<-rt.done
	rt.wg.Wait()
}

// View returns the last published read model.
func (s *Session) View() View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

type event interface{ isEvent() }

type evStart struct{}

type evSnapshot struct {
	cycle uint64
	res   SnapshotResult
}

type evOpened struct{ gen uint64 }

type evLine struct {
	gen  uint64
	line string
}

type evStreamError struct {
	gen uint64
	err error
}

type evClosed struct{ gen uint64 }

func (evStart) isEvent()       {}
func (evSnapshot) isEvent()    {}
func (evOpened) isEvent()      {}
func (evLine) isEvent()        {}
func (evStreamError) isEvent() {}
func (evClosed) isEvent()      {}

// transport tracks one dialed stream; cancelling it closes the connection.
type transport struct {
	cancel  context.CancelFunc
	closing bool
}

// loop is the per-run state of a Session. Everything below wg is owned by
// the loop goroutine.
type loop struct {
	ctx      context.Context
	cancel   context.CancelFunc
	inbox    chan event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	state      sessionState
	rec        *Reconciler
	reconnect  *scheduledTask
	transports map[uint64]*transport
	snapCancel context.CancelFunc
	published  bool
	lastKey    viewKey
}

func (s *Session) newLoop(parent context.Context) *loop {
	ctx, cancel := context.WithCancel(parent)
	return &loop{
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan event, inboxSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		rec:        NewReconciler(s.log),
		reconnect:  newScheduledTask(s.clock),
		transports: make(map[uint64]*transport),
	}
}

// post hands ev to the loop. It reports false once the loop has exited.
func (l *loop) post(ev event) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.inbox <- ev:
		return true
	case <-l.done:
		return false
	}
}

func (l *loop) exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (s *Session) run(l *loop) {
	defer close(l.done)
	s.log.Infow("telemetry_session_started", "snapshot_url", s.SnapshotURL(), "stream_url", s.streamURL)

	for {
		select {
		case ev := <-l.inbox:
			s.dispatch(l, ev)
		case <-l.reconnect.C():
			l.reconnect.Fired()
			s.log.Infow("telemetry_reconnecting", "url", l.state.stream.url)
			next, cmds := l.state.reconnectDue()
			s.apply(l, next, cmds)
		case <-l.stop:
			s.teardown(l)
			return
		case <-l.ctx.Done():
			s.teardown(l)
			return
		}
		s.publish(l)
	}
}

func (s *Session) dispatch(l *loop, ev event) {
	switch ev := ev.(type) {
	case evStart:
		next, cmds := l.state.start()
		s.apply(l, next, cmds)

	case evSnapshot:
		if !l.state.mounted || ev.cycle != l.state.cycle {
			s.log.Debugw("telemetry_snapshot_discarded", "cycle", ev.cycle, "current", l.state.cycle)
			return
		}
		s.observer.SnapshotResolved(ev.res.Activity)
		next, cmds := l.state.snapshotResolved(ev.cycle, ev.res, l.rec, s.streamURL)
		s.apply(l, next, cmds)
		s.log.Infow("telemetry_snapshot_applied",
			"activity", l.state.activity,
			"records", l.rec.Len(),
		)

	case evOpened:
		s.apply(l, l.state.streamOpened(ev.gen), nil)

	case evLine:
		if !l.state.accepts(ev.gen) {
			return
		}
		next, out, cmds := l.state.lineReceived(ev.gen, ev.line, l.rec)
		if out != LineEmpty {
			s.observer.LineProcessed(out.String())
		}
		if out == LineSentinel {
			s.log.Infow("telemetry_program_finished")
		}
		s.apply(l, next, cmds)

	case evStreamError:
		if t, ok := l.transports[ev.gen]; ok && t.closing {
			s.log.Debugw("telemetry_stream_error", "gen", ev.gen, "err", ev.err)
			return
		}
		s.log.Warnw("telemetry_stream_error", "gen", ev.gen, "err", ev.err)

	case evClosed:
		if t, ok := l.transports[ev.gen]; ok {
			t.cancel()
			delete(l.transports, ev.gen)
		}
		next, cmds := l.state.streamClosed(ev.gen)
		s.apply(l, next, cmds)
	}
}

// apply installs the next state and executes its commands in order.
func (s *Session) apply(l *loop, next sessionState, cmds []command) {
	prev := l.state.stream.conn
	l.state = next
	for _, c := range cmds {
		s.exec(l, c)
	}
	if cur := l.state.stream.conn; cur != prev {
		s.log.Infow("telemetry_state_changed", "from", prev, "to", cur, "gen", l.state.stream.gen)
		s.observer.StateChanged(cur)
	}
}

func (s *Session) exec(l *loop, c command) {
	switch c := c.(type) {
	case cmdDial:
		s.dial(l, c.gen, c.url)
	case cmdCloseTransport:
		if t, ok := l.transports[c.gen]; ok {
			t.closing = true
			t.cancel()
		}
	case cmdScheduleReconnect:
		l.reconnect.Schedule(s.cfg.ReconnectDelay)
		s.observer.ReconnectScheduled()
		s.log.Warnw("telemetry_stream_lost", "retry_in", s.cfg.ReconnectDelay.String())
	case cmdCancelReconnect:
		l.reconnect.Cancel()
	case cmdFetchSnapshot:
		s.fetchSnapshot(l, c.cycle)
	case cmdCancelSnapshot:
		if l.snapCancel != nil {
			l.snapCancel()
			l.snapCancel = nil
		}
	}
}

// dial opens transport gen in the background. The connection is closed as
// soon as its context is cancelled, by a close command or by teardown.
func (s *Session) dial(l *loop, gen uint64, url string) {
	ctx, cancel := context.WithCancel(l.ctx)
	l.transports[gen] = &transport{cancel: cancel}
	s.log.Infow("telemetry_stream_connecting", "url", url, "gen", gen)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		conn, err := s.dialer.Dial(ctx, url)
		if err != nil {
			l.post(evStreamError{gen: gen, err: err})
			l.post(evClosed{gen: gen})
			return
		}
		release := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer func() {
			if release() {
				_ = conn.Close()
			}
		}()

		if !l.post(evOpened{gen: gen}) {
			return
		}
		s.readPump(l, gen, conn)
	}()
}

// readPump forwards every line of every message until the transport ends.
func (s *Session) readPump(l *loop, gen uint64, conn Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				l.post(evStreamError{gen: gen, err: err})
			}
			l.post(evClosed{gen: gen})
			return
		}
		for _, line := range strings.Split(string(msg), "\n") {
			if !l.post(evLine{gen: gen, line: line}) {
				return
			}
		}
	}
}

func (s *Session) fetchSnapshot(l *loop, cycle uint64) {
	if l.snapCancel != nil {
		l.snapCancel()
	}
	ctx, cancel := context.WithTimeout(l.ctx, s.cfg.SnapshotTimeout)
	l.snapCancel = cancel

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()
		res := s.snapshots.Fetch(ctx)
		l.post(evSnapshot{cycle: cycle, res: res})
	}()
}

func (s *Session) teardown(l *loop) {
	next, cmds := l.state.stop()
	s.apply(l, next, cmds)
	l.cancel()
	s.publish(l)
	s.log.Infow("telemetry_session_stopped", "records", l.rec.Len())
}

// viewKey is what a published View is derived from; an unchanged key means
// an unchanged View.
type viewKey struct {
	rev      uint64
	conn     models.ConnectionState
	activity models.ProcessActivity
	loading  bool
	stats    Stats
}

// publish hands the read model to the View and the sinks when it changed.
// Records and CSV are shared with the reconciler, so a publish costs the
// same for a long log as for a short one.
func (s *Session) publish(l *loop) {
	st := l.state
	key := viewKey{
		rev:      l.rec.Revision(),
		conn:     st.stream.conn,
		activity: st.activity,
		loading:  st.loading,
		stats:    l.rec.Stats(),
	}
	if l.published && key == l.lastKey {
		return
	}
	l.published, l.lastKey = true, key

	v := View{
		CSV:       l.rec.CSV(),
		Records:   l.rec.SharedRecords(),
		Connected: st.stream.conn == models.StateOpen,
		NoProcess: st.activity == models.ActivityInactive,
		Loading:   st.loading,
		State:     st.stream.conn,
		Activity:  st.activity,
		Stats:     key.stats,
	}
	if ts, ok := l.rec.LastTimestamp(); ok && len(v.Records) > 0 {
		v.LastTimestamp = &ts
	}

	s.viewMu.Lock()
	s.view = v
	s.viewMu.Unlock()

	s.observer.RecordsChanged(len(v.Records))
	for _, sink := range s.sinks {
		sink.Publish(v)
	}
}
