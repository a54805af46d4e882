package main

import (
	log "github.com/sirupsen/logrus"
)

// Attribute names a value that observers can be told about. The names double
// as MQTT topic suffixes and websocket event sources.
type Attribute string

const (
	AttrFanActive    Attribute = "fan/active"
	AttrFanMode      Attribute = "fan/mode"
	AttrFanTimeout   Attribute = "fan/timeout"
	AttrFanDutyCycle Attribute = "fan/dutycycle"
	AttrHrvActive    Attribute = "hrv/active"
	AttrHrvMode      Attribute = "hrv/mode"
)

var allAttributes = []Attribute{
	AttrFanActive, AttrFanMode, AttrFanTimeout, AttrFanDutyCycle, AttrHrvActive, AttrHrvMode,
}

// Notifier is told whenever an attribute value changes. Values are bool for
// the active attributes, Mode for modes and uint8 for the numbers.
type Notifier interface {
	Changed(attr Attribute, value interface{})
}

// Output drives one physical relay.
type Output interface {
	Set(on bool) error
}

type multiNotifier []Notifier

func (m multiNotifier) Changed(attr Attribute, value interface{}) {
	for _, n := range m {
		n.Changed(attr, value)
	}
}

// outputNotifier applies resolved outputs to the relays and reports changes.
// cache holds what the relays were last switched to successfully. An output
// whose switch failed is retried on every Apply until it succeeds.
type outputNotifier struct {
	fan    Output
	hrv    Output
	notify Notifier
	cache  Outputs
	retry  Outputs
}

// newOutputNotifier drives both outputs off, matching the cold-start cache.
func newOutputNotifier(fan, hrv Output, notify Notifier) *outputNotifier {
	n := &outputNotifier{fan: fan, hrv: hrv, notify: notify}
	n.retry.Fan = !n.set("fan", n.fan, false)
	n.retry.Hrv = !n.set("hrv", n.hrv, false)
	return n
}

func (n *outputNotifier) set(name string, out Output, on bool) bool {
	if err := out.Set(on); err != nil {
		log.Errorf("unable to switch %s output %s: %s", name, onOffToString(on), err)
		return false
	}
	return true
}

// Apply resolves s and actuates and announces every output that differs from
// the last applied value.
func (n *outputNotifier) Apply(s DemandState) {
	next := Resolve(s)

	if next.Fan != n.cache.Fan || n.retry.Fan {
		log.Infof("Setting fan %s. Manual demand = %t. Auto demand = %t.",
			onOffToString(next.Fan), s.FanManual, s.FanAuto)
		ok := n.set("fan", n.fan, next.Fan)
		n.retry.Fan = !ok
		if ok && next.Fan != n.cache.Fan {
			n.cache.Fan = next.Fan
			n.notify.Changed(AttrFanActive, next.Fan)
		}
	}

	if next.Hrv != n.cache.Hrv || n.retry.Hrv {
		log.Infof("Setting HRV %s. Manual demand = %t. Mode = %s.",
			onOffToString(next.Hrv), s.HrvManual, s.HrvTargetMode)
		ok := n.set("hrv", n.hrv, next.Hrv)
		n.retry.Hrv = !ok
		if ok && next.Hrv != n.cache.Hrv {
			n.cache.Hrv = next.Hrv
			n.notify.Changed(AttrHrvActive, next.Hrv)
		}
	}
}

func (n *outputNotifier) Applied() Outputs {
	return n.cache
}
