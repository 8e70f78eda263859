package clock

// #region imports
import (
	"time"
)

// #endregion imports

// #region interface

// Clock abstracts time so collection windows and decision timestamps can
// run against a deterministic source. Production code injects Real();
// tests inject Fake(...).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, f func()) *Timer
	Sleep(d time.Duration)
}

// Timer mirrors the stoppable part of time.Timer for both clock kinds.
// C is nil for AfterFunc timers.
type Timer struct {
	C        <-chan time.Time
	stopFunc func() bool
}

// Stop prevents the timer from firing. Reports whether it was still pending.
func (t *Timer) Stop() bool { return t.stopFunc() }

// #endregion interface

// #region real

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// #endregion real
