package recite

import "time"

// Timer is a scheduled callback that can be canceled before it fires.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was
	// already stopped.
	Stop() bool
}

// Scheduler creates delayed callbacks. The controller owns every timer it
// schedules and cancels them on Stop and re-entry; tests inject a fake to
// drive time deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// clockScheduler schedules over [time.AfterFunc].
type clockScheduler struct{}

// NewScheduler returns the wall-clock Scheduler.
func NewScheduler() Scheduler { return clockScheduler{} }

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
