package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Phase is the state of the duty-cycle oscillator.
type Phase uint8

const (
	PhaseStopped Phase = iota
	PhaseOn
	PhaseOff
)

func (p Phase) String() string {
	switch p {
	case PhaseOn:
		return "on"
	case PhaseOff:
		return "off"
	default:
		return "stopped"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// AnchorPolicy decides where the off-phase ends after a clock correction.
type AnchorPolicy string

const (
	// AnchorOriginal keeps the minute of the hour the oscillator started at.
	AnchorOriginal AnchorPolicy = "original"
	// AnchorShift moves the anchor along with the correction, so the
	// remaining off time is unchanged.
	AnchorShift AnchorPolicy = "shift"
)

func parseAnchorPolicy(s string) (AnchorPolicy, error) {
	switch AnchorPolicy(s) {
	case "", AnchorOriginal:
		return AnchorOriginal, nil
	case AnchorShift:
		return AnchorShift, nil
	default:
		return "", fmt.Errorf("invalid clock anchor %q (must be original or shift)", s)
	}
}

// oscillator alternates the automatic fan demand between an on-phase lasting
// the duty cycle share of an hour and an off-phase lasting until the anchor
// minute comes around again.
type oscillator struct {
	state  *DemandState
	clock  Clock
	timer  *timer
	apply  func()
	policy AnchorPolicy

	phase      Phase
	anchor     time.Duration // offset into the hour
	phaseStart time.Time
}

func newOscillator(state *DemandState, clock Clock, policy AnchorPolicy, fatal fatalFunc, apply func()) *oscillator {
	o := &oscillator{state: state, clock: clock, apply: apply, policy: policy}
	o.timer = newTimer("duty-cycle", clock, fatal, o.transition)
	return o
}

func offsetInHour(t time.Time) time.Duration {
	return time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

func wrapHour(d time.Duration) time.Duration {
	d %= time.Hour
	if d < 0 {
		d += time.Hour
	}
	return d
}

func (o *oscillator) onDuration() time.Duration {
	return time.Duration(o.state.FanDutyCycle) * time.Hour / 100
}

func (o *oscillator) untilAnchor(now time.Time) time.Duration {
	return wrapHour(o.anchor - offsetInHour(now))
}

// offDuration never returns a near-zero wait: an anchor that is due right now
// belongs to the next hour.
func (o *oscillator) offDuration(now time.Time) time.Duration {
	d := o.untilAnchor(now)
	if d <= safetyMargin {
		d += time.Hour
	}
	return d
}

func (o *oscillator) atAnchor(now time.Time) bool {
	d := o.untilAnchor(now)
	return d <= safetyMargin || d >= time.Hour-safetyMargin
}

// Start anchors the cycle to the current minute of the hour. The first
// on-phase begins immediately.
func (o *oscillator) Start() {
	if o.phase != PhaseStopped {
		return
	}

	now := o.clock.Now()
	o.anchor = offsetInHour(now)
	o.phase = PhaseOff
	o.phaseStart = now
	log.Infof("DutyCycle starting at minute %.1f of the hour", o.anchor.Minutes())
	o.timer.reschedule(now)
}

func (o *oscillator) Stop() {
	if o.phase != PhaseStopped {
		log.Info("DutyCycle stopped")
	}
	o.timer.stop()
	o.phase = PhaseStopped
	o.state.FanAuto = false
}

func (o *oscillator) transition() {
	now := o.clock.Now()

	switch o.phase {
	case PhaseOn:
		if o.state.FanDutyCycle > 0 && o.atAnchor(now) {
			// the on-phase used up the whole hour
			o.enterOn(now)
		} else {
			log.Info("DutyCycle turning off")
			o.enterOff(now)
		}
	case PhaseOff:
		if o.state.FanDutyCycle > 0 {
			log.Info("DutyCycle turning on")
			o.enterOn(now)
		} else {
			log.Info("DutyCycle on-phase suppressed, duty cycle is 0")
			o.enterOff(now)
		}
	default:
		return
	}

	log.Infof("DutyCycle fan is %s, will toggle in %s", o.phase, o.timer.deadline.Sub(now))
	o.apply()
}

func (o *oscillator) enterOn(now time.Time) {
	o.phase = PhaseOn
	o.phaseStart = now
	o.state.FanAuto = true
	o.timer.reschedule(now.Add(o.onDuration()))
}

func (o *oscillator) enterOff(now time.Time) {
	o.phase = PhaseOff
	o.phaseStart = now
	o.state.FanAuto = false
	o.timer.reschedule(now.Add(o.offDuration(now)))
}

// OnDutyCycleChanged stretches or shortens a running on-phase. The length is
// measured from the original phase start, not from now.
func (o *oscillator) OnDutyCycleChanged() {
	if o.phase != PhaseOn {
		return
	}

	end := o.phaseStart.Add(o.onDuration())
	log.Infof("DutyCycle changed to %d%%, on-phase now ends in %s", o.state.FanDutyCycle, end.Sub(o.clock.Now()))
	o.timer.reschedule(end)
}

// OnClockCorrected recomputes the off-phase deadline against the corrected
// wall clock. An on-phase has a fixed length and is left alone.
func (o *oscillator) OnClockCorrected(offset time.Duration) {
	log.Infof("Time changed by %s. Fan auto cycling is currently %s.", offset, o.phase)
	if o.phase != PhaseOff {
		return
	}

	if o.policy == AnchorShift {
		o.anchor = wrapHour(o.anchor + offset)
	}
	now := o.clock.Now()
	o.timer.reschedule(now.Add(o.offDuration(now)))
}

func (o *oscillator) Phase() Phase {
	return o.phase
}

// NextTransition returns the pending phase boundary, or the zero time when
// stopped.
func (o *oscillator) NextTransition() time.Time {
	if o.phase == PhaseStopped {
		return time.Time{}
	}
	return o.timer.deadline
}
