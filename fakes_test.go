package main

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeClock keeps monotonic and wall time apart so tests can step the wall
// clock without moving pending alarms, like a real NTP correction.
type fakeClock struct {
	base        time.Time
	mono        time.Duration
	wallOffset  time.Duration
	alarms      []*fakeAlarm
	seq         int
	scheduleErr error
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{base: start}
}

func (c *fakeClock) Now() time.Time {
	return c.base.Add(c.mono + c.wallOffset)
}

func (c *fakeClock) NewAlarm(fire func()) Alarm {
	a := &fakeAlarm{clock: c, fire: fire}
	c.alarms = append(c.alarms, a)
	return a
}

// Advance moves both clocks forward by d, firing due alarms in order.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.mono + d
	for {
		due := c.nextDue(target)
		if due == nil {
			break
		}
		if due.due > c.mono {
			c.mono = due.due
		}
		due.pending = false
		due.fire()
	}
	c.mono = target
}

// Jump steps only the wall clock.
func (c *fakeClock) Jump(d time.Duration) {
	c.wallOffset += d
}

func (c *fakeClock) nextDue(limit time.Duration) *fakeAlarm {
	var pending []*fakeAlarm
	for _, a := range c.alarms {
		if a.pending && a.due <= limit {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].due == pending[j].due {
			return pending[i].seq < pending[j].seq
		}
		return pending[i].due < pending[j].due
	})
	return pending[0]
}

type fakeAlarm struct {
	clock   *fakeClock
	fire    func()
	due     time.Duration
	seq     int
	pending bool
}

func (a *fakeAlarm) Schedule(deadline time.Time) error {
	if a.clock.scheduleErr != nil {
		return a.clock.scheduleErr
	}
	a.clock.seq++
	a.seq = a.clock.seq
	a.due = a.clock.mono + deadline.Sub(a.clock.Now())
	a.pending = true
	return nil
}

func (a *fakeAlarm) Cancel() {
	a.pending = false
}

func (a *fakeAlarm) Pending() bool {
	return a.pending
}

type recordingOutput struct {
	mu   sync.Mutex
	sets []bool
	err  error
}

func (o *recordingOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sets = append(o.sets, on)
	return o.err
}

func (o *recordingOutput) last() (bool, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sets) == 0 {
		return false, false
	}
	return o.sets[len(o.sets)-1], true
}

type change struct {
	attr  Attribute
	value interface{}
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []change
}

func (n *recordingNotifier) Changed(attr Attribute, value interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change{attr, value})
}

func (n *recordingNotifier) of(attr Attribute) []interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	var values []interface{}
	for _, c := range n.changes {
		if c.attr == attr {
			values = append(values, c.value)
		}
	}
	return values
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = nil
}

var errStoreBroken = errors.New("store broken")

type memStore struct {
	cfg     *Config
	loadErr error
	saveErr error
	saves   []Config
}

func (s *memStore) Load() (Config, error) {
	if s.loadErr != nil {
		return Config{}, s.loadErr
	}
	if s.cfg == nil {
		return Config{}, ErrConfigNotFound
	}
	return *s.cfg, nil
}

func (s *memStore) Save(cfg Config) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, cfg)
	c := cfg
	s.cfg = &c
	return nil
}

type fatalRecorder struct {
	msgs []string
}

func (f *fatalRecorder) fatal(format string, args ...interface{}) {
	f.msgs = append(f.msgs, fmt.Sprintf(format, args...))
}

// testRig is a controller wired to fakes, starting at minute 10 of the hour.
type testRig struct {
	clock  *fakeClock
	store  *memStore
	fan    *recordingOutput
	hrv    *recordingOutput
	notify *recordingNotifier
	fatal  *fatalRecorder
	c      *Controller
}

var rigStart = time.Date(2024, 1, 1, 12, 10, 0, 0, time.UTC)

func newRig(cfg *Config, opts ...ControllerOption) *testRig {
	r := &testRig{
		clock:  newFakeClock(rigStart),
		store:  &memStore{cfg: cfg},
		fan:    &recordingOutput{},
		hrv:    &recordingOutput{},
		notify: &recordingNotifier{},
		fatal:  &fatalRecorder{},
	}
	opts = append([]ControllerOption{WithFatal(r.fatal.fatal)}, opts...)
	r.c = NewController(r.store, r.clock, r.fan, r.hrv, r.notify, opts...)
	r.c.Start()
	return r
}

func autoConfig(duty uint8) *Config {
	cfg := DefaultConfig()
	cfg.FanTargetMode = ModeAuto
	cfg.FanDutyCycle = duty
	return &cfg
}
