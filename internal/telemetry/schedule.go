package telemetry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// scheduledTask is a single cancellable delayed action. The session loop
// selects on C() and calls Fired when it receives from it, so a task can
// never fire after Cancel.
type scheduledTask struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func newScheduledTask(clock clockwork.Clock) *scheduledTask {
	return &scheduledTask{clock: clock}
}

// Schedule replaces any pending run with one after d.
func (t *scheduledTask) Schedule(d time.Duration) {
	t.Cancel()
	t.timer = t.clock.NewTimer(d)
}

// Cancel drops the pending run, if any.
func (t *scheduledTask) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// C is nil while nothing is scheduled, which blocks forever in a select.
func (t *scheduledTask) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.Chan()
}

// Fired marks the pending run as consumed.
func (t *scheduledTask) Fired() { t.timer = nil }
