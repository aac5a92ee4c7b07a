package telemetry

import "kiln_console/internal/models"

// sessionState is the composed lifecycle + stream state of one session. It
// is owned by the session loop and only replaced through the transition
// methods below, which return the next value and the commands to execute.
type sessionState struct {
	mounted  bool
	cycle    uint64 // acquisition cycle; snapshot results of older cycles are dropped
	loading  bool   // snapshot outstanding
	activity models.ProcessActivity
	stream   streamState
}

func (st sessionState) start() (sessionState, []command) {
	if st.stream.conn == models.StateTerminated {
		return st, nil
	}
	st.mounted = true
	st.cycle++
	st.loading = true
	return st, []command{cmdFetchSnapshot{cycle: st.cycle}}
}

// snapshotResolved applies a snapshot through the reconciler's reset path.
// Results arriving after teardown or for a superseded cycle are discarded.
func (st sessionState) snapshotResolved(cycle uint64, res SnapshotResult, rec *Reconciler, streamURL string) (sessionState, []command) {
	if !st.mounted || cycle != st.cycle {
		return st, nil
	}
	st.loading = false
	rec.Reset(res)
	st.activity = rec.Activity()

	var cmds []command
	if st.activity == models.ActivityActive {
		st.stream, cmds = st.stream.connect(streamURL)
	} else {
		st.stream, cmds = st.stream.close(true)
	}
	return st, cmds
}

// accepts reports whether stream events of gen belong to the live session.
func (st sessionState) accepts(gen uint64) bool {
	return st.mounted && gen == st.stream.gen
}

func (st sessionState) lineReceived(gen uint64, line string, rec *Reconciler) (sessionState, LineOutcome, []command) {
	if !st.accepts(gen) || st.stream.manual {
		return st, LineEmpty, nil
	}
	out := rec.AppendLine(line)
	if out != LineSentinel {
		return st, out, nil
	}
	st.activity = models.ActivityInactive
	var cmds []command
	st.stream, cmds = st.stream.close(true)
	return st, out, cmds
}

func (st sessionState) streamOpened(gen uint64) sessionState {
	if !st.accepts(gen) {
		return st
	}
	st.stream = st.stream.opened(gen)
	return st
}

func (st sessionState) streamClosed(gen uint64) (sessionState, []command) {
	var cmds []command
	st.stream, cmds = st.stream.closed(gen, st.activity, st.mounted)
	return st, cmds
}

// reconnectDue runs when the reconnect delay has elapsed.
func (st sessionState) reconnectDue() (sessionState, []command) {
	if !st.mounted || st.activity == models.ActivityInactive || st.stream.conn != models.StateClosedUnexpected {
		return st, nil
	}
	var cmds []command
	st.stream, cmds = st.stream.connect(st.stream.url)
	return st, cmds
}

// stop is terminal: it suppresses every pending transition.
func (st sessionState) stop() (sessionState, []command) {
	st.mounted = false
	st.loading = false
	var cmds []command
	st.stream, cmds = st.stream.terminate()
	return st, append(cmds, cmdCancelSnapshot{})
}
