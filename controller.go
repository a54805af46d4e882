package main

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// ConfigStore persists the configuration part of the demand state.
type ConfigStore interface {
	// Load returns ErrConfigNotFound when nothing was saved yet and
	// ErrConfigCorrupt when the stored record cannot be used.
	Load() (Config, error)
	Save(Config) error
}

// Ventilator is the set of entry points the transports call into.
type Ventilator interface {
	ReadFanActive() bool
	WriteFanActive(on bool)
	ReadFanMode() Mode
	WriteFanMode(mode Mode)
	ReadFanTimeoutMinutes() uint8
	WriteFanTimeoutMinutes(minutes uint8)
	ReadFanDutyCycle() uint8
	WriteFanDutyCycle(percent uint8)
	ReadHrvActive() bool
	WriteHrvActive(on bool)
	ReadHrvMode() Mode
	WriteHrvMode(mode Mode)
	Status() Status
}

type Status struct {
	Outputs           Outputs    `json:"outputs"`
	FanManual         bool       `json:"fanManual"`
	FanAuto           bool       `json:"fanAuto"`
	HrvManual         bool       `json:"hrvManual"`
	FanMode           Mode       `json:"fanMode"`
	FanTimeoutMinutes uint8      `json:"fanTimeoutMinutes"`
	FanDutyCycle      uint8      `json:"fanDutyCycle"`
	HrvMode           Mode       `json:"hrvMode"`
	Phase             Phase      `json:"phase"`
	NextTransition    *time.Time `json:"nextTransition,omitempty"`
	WatchdogDeadline  *time.Time `json:"watchdogDeadline,omitempty"`
}

// Controller owns the demand state and both timer state machines. It is not
// safe for concurrent use; run it on a Loop and hand loopVentilator to
// anything living on other goroutines.
type Controller struct {
	state      DemandState
	store      ConfigStore
	clock      Clock
	notify     Notifier
	outputs    *outputNotifier
	watchdog   *watchdog
	oscillator *oscillator
	fatal      fatalFunc
	policy     AnchorPolicy
}

type ControllerOption func(*Controller)

func WithAnchorPolicy(p AnchorPolicy) ControllerOption {
	return func(c *Controller) { c.policy = p }
}

// WithFatal replaces the handler for unrecoverable errors, log.Fatalf by
// default.
func WithFatal(fn fatalFunc) ControllerOption {
	return func(c *Controller) { c.fatal = fn }
}

func NewController(store ConfigStore, clock Clock, fan, hrv Output, notify Notifier, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:  store,
		clock:  clock,
		notify: notify,
		fatal:  log.Fatalf,
		policy: AnchorOriginal,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.state = newDemandState(c.loadConfig())
	c.outputs = newOutputNotifier(fan, hrv, notify)
	c.watchdog = newWatchdog(&c.state, clock, c.fatal, c.apply)
	c.oscillator = newOscillator(&c.state, clock, c.policy, c.fatal, c.apply)
	return c
}

func (c *Controller) loadConfig() Config {
	cfg, err := c.store.Load()
	switch {
	case err == nil:
		return cfg
	case errors.Is(err, ErrConfigNotFound):
		log.Info("no saved state found, using defaults")
	case errors.Is(err, ErrConfigCorrupt):
		log.Warnf("Unexpected state found in store (%s). Resetting to default.", err)
	default:
		c.fatal("unable to load state: %s", err)
	}
	return DefaultConfig()
}

func (c *Controller) saveConfig() {
	if err := c.store.Save(c.state.Config); err != nil {
		c.fatal("unable to save state: %s", err)
	}
}

// Start resumes duty cycling when the loaded configuration asks for it.
func (c *Controller) Start() {
	if c.state.FanTargetMode == ModeAuto {
		c.oscillator.Start()
	}
}

// Stop cancels both timers and turns everything off.
func (c *Controller) Stop() {
	c.oscillator.Stop()
	c.state.FanManual = false
	c.state.HrvManual = false
	c.apply()
}

// apply keeps the watchdog tied to manual demand and pushes the resolved
// outputs to the relays.
func (c *Controller) apply() {
	if !c.state.FanManual && !c.state.HrvManual {
		c.watchdog.Stop()
	}
	c.outputs.Apply(c.state)
}

// OnClockCorrected is called after the wall clock was stepped by offset.
func (c *Controller) OnClockCorrected(offset time.Duration) {
	c.oscillator.OnClockCorrected(offset)
}

func (c *Controller) ReadFanActive() bool {
	v := fanEffective(c.state)
	log.Debugf("ReadFanActive: %t", v)
	return v
}

// WriteFanActive(true) is a keep-alive: it restarts the auto-off countdown
// even when the fan already runs. Turning the fan off also ends the current
// duty cycle and the HRV.
func (c *Controller) WriteFanActive(on bool) {
	log.Infof("WriteFanActive: %t", on)

	changed := false
	if on {
		if !c.state.FanManual {
			c.state.FanManual = true
			changed = true
		}
		c.watchdog.Start()
	} else if fanEffective(c.state) {
		c.state.FanManual = false
		c.state.FanAuto = false
		c.state.HrvManual = false
		changed = true
	}

	if changed {
		c.apply()
	}
}

func (c *Controller) ReadFanMode() Mode {
	log.Debugf("ReadFanMode: %s", c.state.FanTargetMode)
	return c.state.FanTargetMode
}

func (c *Controller) WriteFanMode(mode Mode) {
	log.Infof("WriteFanMode: %s", mode)

	mode = clampMode(mode)
	if c.state.FanTargetMode == mode {
		return
	}

	c.state.FanTargetMode = mode
	c.saveConfig()
	if mode == ModeAuto {
		c.oscillator.Start()
	} else {
		c.oscillator.Stop()
	}
	c.apply()
	c.notify.Changed(AttrFanMode, mode)
}

func (c *Controller) ReadFanTimeoutMinutes() uint8 {
	log.Debugf("ReadFanTimeoutMinutes: %d", c.state.FanTimeoutMinutes)
	return c.state.FanTimeoutMinutes
}

func (c *Controller) WriteFanTimeoutMinutes(minutes uint8) {
	log.Infof("WriteFanTimeoutMinutes: %d", minutes)

	if c.state.FanTimeoutMinutes == minutes {
		return
	}

	c.state.FanTimeoutMinutes = minutes
	c.saveConfig()
	c.watchdog.UpdateTimeout()
	c.notify.Changed(AttrFanTimeout, minutes)
}

func (c *Controller) ReadFanDutyCycle() uint8 {
	log.Debugf("ReadFanDutyCycle: %d", c.state.FanDutyCycle)
	return c.state.FanDutyCycle
}

func (c *Controller) WriteFanDutyCycle(percent uint8) {
	log.Infof("WriteFanDutyCycle: %d", percent)

	percent = clampDutyCycle(percent)
	if c.state.FanDutyCycle == percent {
		return
	}

	c.state.FanDutyCycle = percent
	c.saveConfig()
	c.oscillator.OnDutyCycleChanged()
	c.notify.Changed(AttrFanDutyCycle, percent)
}

func (c *Controller) ReadHrvActive() bool {
	v := hrvEffective(c.state)
	log.Debugf("ReadHrvActive: %t", v)
	return v
}

// WriteHrvActive(true) needs the furnace fan to move air, so it raises manual
// fan demand as well. Turning off an HRV that runs from the duty cycle ends
// the current cycle.
func (c *Controller) WriteHrvActive(on bool) {
	log.Infof("WriteHrvActive: %t", on)

	if hrvEffective(c.state) == on {
		return
	}

	c.state.HrvManual = on
	if on {
		log.Info("Turning on fan and auto-off watchdog")
		c.state.FanManual = true
		c.watchdog.Start()
	} else if hrvEffective(c.state) {
		c.state.FanAuto = false
	}
	c.apply()
}

func (c *Controller) ReadHrvMode() Mode {
	log.Debugf("ReadHrvMode: %s", c.state.HrvTargetMode)
	return c.state.HrvTargetMode
}

func (c *Controller) WriteHrvMode(mode Mode) {
	log.Infof("WriteHrvMode: %s", mode)

	mode = clampMode(mode)
	if c.state.HrvTargetMode == mode {
		return
	}

	c.state.HrvTargetMode = mode
	c.saveConfig()
	c.apply()
	c.notify.Changed(AttrHrvMode, mode)
}

func (c *Controller) Status() Status {
	st := Status{
		Outputs:           Resolve(c.state),
		FanManual:         c.state.FanManual,
		FanAuto:           c.state.FanAuto,
		HrvManual:         c.state.HrvManual,
		FanMode:           c.state.FanTargetMode,
		FanTimeoutMinutes: c.state.FanTimeoutMinutes,
		FanDutyCycle:      c.state.FanDutyCycle,
		HrvMode:           c.state.HrvTargetMode,
		Phase:             c.oscillator.Phase(),
	}
	if t := c.oscillator.NextTransition(); !t.IsZero() {
		st.NextTransition = &t
	}
	if t := c.watchdog.Deadline(); !t.IsZero() {
		st.WatchdogDeadline = &t
	}
	return st
}

// loopVentilator serializes every entry point onto the event loop.
type loopVentilator struct {
	loop *Loop
	c    *Controller
}

func newLoopVentilator(loop *Loop, c *Controller) *loopVentilator {
	return &loopVentilator{loop: loop, c: c}
}

func (v *loopVentilator) do(fn func()) {
	if err := v.loop.Do(fn); err != nil {
		log.Errorf("ventilator request dropped: %s", err)
	}
}

func (v *loopVentilator) ReadFanActive() (on bool) {
	v.do(func() { on = v.c.ReadFanActive() })
	return
}

func (v *loopVentilator) WriteFanActive(on bool) {
	v.do(func() { v.c.WriteFanActive(on) })
}

func (v *loopVentilator) ReadFanMode() (mode Mode) {
	v.do(func() { mode = v.c.ReadFanMode() })
	return
}

func (v *loopVentilator) WriteFanMode(mode Mode) {
	v.do(func() { v.c.WriteFanMode(mode) })
}

func (v *loopVentilator) ReadFanTimeoutMinutes() (minutes uint8) {
	v.do(func() { minutes = v.c.ReadFanTimeoutMinutes() })
	return
}

func (v *loopVentilator) WriteFanTimeoutMinutes(minutes uint8) {
	v.do(func() { v.c.WriteFanTimeoutMinutes(minutes) })
}

func (v *loopVentilator) ReadFanDutyCycle() (percent uint8) {
	v.do(func() { percent = v.c.ReadFanDutyCycle() })
	return
}

func (v *loopVentilator) WriteFanDutyCycle(percent uint8) {
	v.do(func() { v.c.WriteFanDutyCycle(percent) })
}

func (v *loopVentilator) ReadHrvActive() (on bool) {
	v.do(func() { on = v.c.ReadHrvActive() })
	return
}

func (v *loopVentilator) WriteHrvActive(on bool) {
	v.do(func() { v.c.WriteHrvActive(on) })
}

func (v *loopVentilator) ReadHrvMode() (mode Mode) {
	v.do(func() { mode = v.c.ReadHrvMode() })
	return
}

func (v *loopVentilator) WriteHrvMode(mode Mode) {
	v.do(func() { v.c.WriteHrvMode(mode) })
}

func (v *loopVentilator) Status() (st Status) {
	v.do(func() { st = v.c.Status() })
	return
}

// OnClockCorrected is safe to call from any goroutine.
func (v *loopVentilator) OnClockCorrected(offset time.Duration) {
	if err := v.loop.Post(func() { v.c.OnClockCorrected(offset) }); err != nil {
		log.Errorf("clock correction dropped: %s", err)
	}
}
