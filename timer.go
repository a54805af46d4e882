package main

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// safetyMargin is how close to "now" a deadline may be before it is treated
// as already due. Such a deadline runs its expiry synchronously instead of
// arming an alarm that would fire right away and race the caller.
const safetyMargin = time.Second

type fatalFunc func(format string, args ...interface{})

// timer wraps one Alarm for a single owner. The owner's expire callback runs
// at most once per successful schedule.
type timer struct {
	name     string
	clock    Clock
	alarm    Alarm
	expire   func()
	fatal    fatalFunc
	started  time.Time
	deadline time.Time
}

func newTimer(name string, clock Clock, fatal fatalFunc, expire func()) *timer {
	t := &timer{name: name, clock: clock, expire: expire, fatal: fatal}
	t.alarm = clock.NewAlarm(t.expire)
	return t
}

// startOnce records now as the start time and expires d later.
func (t *timer) startOnce(d time.Duration) {
	t.started = t.clock.Now()
	log.Debugf("%s timer will fire in %s", t.name, d)
	t.reschedule(t.started.Add(d))
}

// reschedule cancels any pending alarm and arms a new one for deadline.
func (t *timer) reschedule(deadline time.Time) {
	t.alarm.Cancel()
	t.deadline = deadline

	if !deadline.After(t.clock.Now().Add(safetyMargin)) {
		log.Debugf("%s timer deadline already due, expiring now", t.name)
		t.expire()
		return
	}

	if err := t.alarm.Schedule(deadline); err != nil {
		t.fatal("unable to arm %s timer: %s", t.name, err)
	}
}

func (t *timer) stop() {
	t.alarm.Cancel()
}

func (t *timer) pending() bool {
	return t.alarm.Pending()
}
