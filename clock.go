package main

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Clock is the wall-clock source of the controller. The wall clock may be
// corrected at any time, e.g. by NTP.
type Clock interface {
	Now() time.Time
	NewAlarm(fire func()) Alarm
}

// Alarm is a reschedulable single-shot alarm. Schedule replaces any pending
// deadline; Cancel on an alarm that is not pending does nothing.
type Alarm interface {
	Schedule(deadline time.Time) error
	Cancel()
	Pending() bool
}

// realClock delivers alarm expiries onto the event loop.
type realClock struct {
	loop *Loop
}

func newRealClock(loop *Loop) *realClock {
	return &realClock{loop: loop}
}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func (c *realClock) NewAlarm(fire func()) Alarm {
	return &loopAlarm{loop: c.loop, fire: fire}
}

// loopAlarm must only be used from the loop goroutine. The generation
// counter drops an expiry that was already queued when the alarm got
// canceled or rescheduled.
type loopAlarm struct {
	loop    *Loop
	fire    func()
	t       *time.Timer
	gen     uint64
	pending bool
}

func (a *loopAlarm) Schedule(deadline time.Time) error {
	a.Cancel()

	a.gen++
	gen := a.gen
	a.pending = true
	// deadline carries a monotonic reading when it was derived from
	// time.Now(), so the delay is immune to wall-clock jumps.
	a.t = time.AfterFunc(time.Until(deadline), func() {
		err := a.loop.Post(func() {
			if !a.pending || a.gen != gen {
				return
			}
			a.pending = false
			a.fire()
		})
		if err != nil {
			log.Debugf("dropping alarm expiry: %s", err)
		}
	})

	select {
	case <-a.loop.done:
		a.Cancel()
		return ErrLoopClosed
	default:
	}
	return nil
}

func (a *loopAlarm) Cancel() {
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
	a.pending = false
}

func (a *loopAlarm) Pending() bool {
	return a.pending
}
