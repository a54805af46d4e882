package main

// Outputs is the resolved energized state of both relays.
type Outputs struct {
	Fan bool `json:"fan"`
	Hrv bool `json:"hrv"`
}

// dutyCycleEffective reports whether the oscillator is currently allowed to
// drive the fan.
func dutyCycleEffective(s DemandState) bool {
	return s.FanAuto && s.FanTargetMode == ModeAuto
}

func fanEffective(s DemandState) bool {
	return s.FanManual || dutyCycleEffective(s)
}

// hrvEffective never follows manual fan demand, only the duty cycle.
func hrvEffective(s DemandState) bool {
	return s.HrvManual || (dutyCycleEffective(s) && s.HrvTargetMode == ModeAuto)
}

// Resolve maps a demand state onto the outputs that should be applied. It has
// no side effects.
func Resolve(s DemandState) Outputs {
	return Outputs{Fan: fanEffective(s), Hrv: hrvEffective(s)}
}
