package luafm

import (
	"time"

	"github.com/luafm/luafm/luax"
)

// The scheduling mechanism (set_timeout, set_interval) lives on the
// script side, in the "timer" module's Lua half. The native side only
// keeps the single next-due timestamp and invokes the scripts when it
// passes; the full schedule is script-side data.
type timerState struct {
	epoch time.Time

	// Timestamp of the next scheduled function, zero if none.
	next int64

	// Re-entrancy latch, see ExecuteReadyTimeouts.
	lock bool
}

// Now returns the current timestamp in milliseconds. The first call is
// the epoch (it returns zero), and readings are monotonic regardless of
// wall-clock changes.
func (e *Engine) Now() int64 {
	if e.timer.epoch.IsZero() {
		e.timer.epoch = time.Now()
	}
	return time.Since(e.timer.epoch).Milliseconds()
}

// SetNextTimeout records when the next scheduled script function is
// due. Zero means nothing is scheduled. The script side calls this
// (through timer._set_next_timeout) whenever its schedule changes.
func (e *Engine) SetNextTimeout(tm int64) {
	e.timer.next = tm
}

// HasPendingTimeouts reports whether any script function is scheduled,
// and how long the event loop may wait for input before it is due.
func (e *Engine) HasPendingTimeouts() (bool, time.Duration) {
	if e.timer.next == 0 {
		return false, 0
	}
	if wait := e.timer.next - e.Now(); wait > 0 {
		return true, time.Duration(wait) * time.Millisecond
	}
	return true, 0
}

// ExecuteReadyTimeouts runs the scheduled script functions that are now
// due. The event loop calls this once per iteration.
//
// While the handlers run, the latch keeps a nested event loop (a dialog
// opened by a timer handler, say) from re-entering the scheduler; a
// script that wants nested timers anyway calls timer.unlock().
func (e *Engine) ExecuteReadyTimeouts() {
	if e.timer.lock {
		return
	}

	if e.timer.next != 0 && e.timer.next <= e.Now() {
		e.timer.lock = true

		if luax.GetSystemCallback(e.l, "timer::execute_ready_timeouts") {
			e.call.Call(0, 0)
		}

		e.timer.lock = false
	}
}
