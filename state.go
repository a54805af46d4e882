package main

// Mode is the target fan state of an output. The values match the HomeKit
// TargetFanState characteristic.
type Mode uint8

const (
	ModeManual Mode = 0
	ModeAuto   Mode = 1
)

const (
	defaultFanDutyCycle      = 10
	defaultFanTimeoutMinutes = 60
	maxDutyCycle             = 100
)

// Config is the persisted part of the demand state.
type Config struct {
	FanTargetMode     Mode
	FanTimeoutMinutes uint8
	FanDutyCycle      uint8
	HrvTargetMode     Mode
}

func DefaultConfig() Config {
	return Config{
		FanTargetMode:     ModeManual,
		FanTimeoutMinutes: defaultFanTimeoutMinutes,
		FanDutyCycle:      defaultFanDutyCycle,
		HrvTargetMode:     ModeManual,
	}
}

// sanitize keeps values that could only arrive through a corrupt or foreign
// record inside their legal range.
func (c Config) sanitize() Config {
	c.FanTargetMode = clampMode(c.FanTargetMode)
	c.HrvTargetMode = clampMode(c.HrvTargetMode)
	c.FanDutyCycle = clampDutyCycle(c.FanDutyCycle)
	return c
}

// DemandState is the single mutable record of demand flags and configuration.
// FanManual, FanAuto and HrvManual are never persisted.
type DemandState struct {
	Config

	FanManual bool
	FanAuto   bool
	HrvManual bool
}

func newDemandState(cfg Config) DemandState {
	return DemandState{Config: cfg.sanitize()}
}

func clampDutyCycle(v uint8) uint8 {
	if v > maxDutyCycle {
		return maxDutyCycle
	}
	return v
}

func clampMode(m Mode) Mode {
	if m == ModeAuto {
		return ModeAuto
	}
	return ModeManual
}
