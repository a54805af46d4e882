package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOscillator(duty uint8, policy AnchorPolicy) (*oscillator, *DemandState, *fakeClock) {
	clock := newFakeClock(rigStart)
	state := &DemandState{Config: Config{FanTargetMode: ModeAuto, FanDutyCycle: duty}}
	o := newOscillator(state, clock, policy, (&fatalRecorder{}).fatal, func() {})
	return o, state, clock
}

func TestOscillatorQuarterDuty(t *testing.T) {
	o, state, clock := newTestOscillator(25, AnchorOriginal)

	o.Start()
	assert.Equal(t, PhaseOn, o.Phase())
	assert.True(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(15*time.Minute), o.NextTransition())

	clock.Advance(15 * time.Minute)
	assert.Equal(t, PhaseOff, o.Phase())
	assert.False(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(time.Hour), o.NextTransition())

	clock.Advance(45 * time.Minute)
	assert.Equal(t, PhaseOn, o.Phase())
	assert.True(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(75*time.Minute), o.NextTransition())
}

func TestOscillatorDutyChangeStretchesOnPhase(t *testing.T) {
	o, state, clock := newTestOscillator(10, AnchorOriginal)

	o.Start()
	clock.Advance(3 * time.Minute)

	state.FanDutyCycle = 50
	o.OnDutyCycleChanged()
	assert.Equal(t, rigStart.Add(30*time.Minute), o.NextTransition())

	clock.Advance(27*time.Minute - time.Second)
	assert.True(t, state.FanAuto)
	clock.Advance(time.Second)
	assert.False(t, state.FanAuto)
}

func TestOscillatorDutyChangeShortensPastEnd(t *testing.T) {
	o, state, clock := newTestOscillator(50, AnchorOriginal)

	o.Start()
	clock.Advance(20 * time.Minute)

	state.FanDutyCycle = 10
	o.OnDutyCycleChanged()
	assert.Equal(t, PhaseOff, o.Phase())
	assert.False(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(time.Hour), o.NextTransition())
}

func TestOscillatorDutyChangeDuringOffPhase(t *testing.T) {
	o, state, clock := newTestOscillator(25, AnchorOriginal)

	o.Start()
	clock.Advance(20 * time.Minute)
	require.Equal(t, PhaseOff, o.Phase())

	state.FanDutyCycle = 75
	o.OnDutyCycleChanged()
	assert.Equal(t, rigStart.Add(time.Hour), o.NextTransition())

	clock.Advance(40 * time.Minute)
	assert.Equal(t, rigStart.Add(time.Hour+45*time.Minute), o.NextTransition())
}

func TestOscillatorZeroDutyNeverRunsFan(t *testing.T) {
	o, state, clock := newTestOscillator(0, AnchorOriginal)

	o.Start()
	assert.Equal(t, PhaseOff, o.Phase())
	assert.False(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(time.Hour), o.NextTransition())

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Hour)
		assert.Equal(t, PhaseOff, o.Phase())
		assert.False(t, state.FanAuto)
		assert.Equal(t, rigStart.Add(time.Duration(i+1)*time.Hour), o.NextTransition())
	}
}

func TestOscillatorFullDutyChainsOnPhases(t *testing.T) {
	o, state, clock := newTestOscillator(100, AnchorOriginal)

	o.Start()
	assert.Equal(t, rigStart.Add(time.Hour), o.NextTransition())

	clock.Advance(time.Hour)
	assert.Equal(t, PhaseOn, o.Phase())
	assert.True(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(2*time.Hour), o.NextTransition())
}

func TestOscillatorStop(t *testing.T) {
	o, state, clock := newTestOscillator(25, AnchorOriginal)

	o.Start()
	o.Stop()
	assert.Equal(t, PhaseStopped, o.Phase())
	assert.False(t, state.FanAuto)
	assert.True(t, o.NextTransition().IsZero())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, PhaseStopped, o.Phase())
	assert.False(t, state.FanAuto)
}

func TestOscillatorStartTwiceKeepsAnchor(t *testing.T) {
	o, _, clock := newTestOscillator(25, AnchorOriginal)

	o.Start()
	clock.Advance(5 * time.Minute)
	o.Start()
	assert.Equal(t, rigStart.Add(15*time.Minute), o.NextTransition())
}

func TestOscillatorClockCorrection(t *testing.T) {
	tests := []struct {
		policy    AnchorPolicy
		remaining time.Duration
		wallNext  time.Time
	}{
		// anchor stays at minute 10
		{AnchorOriginal, 20 * time.Minute, time.Date(2024, 1, 1, 13, 10, 0, 0, time.UTC)},
		// anchor follows the jump to minute 30
		{AnchorShift, 40 * time.Minute, time.Date(2024, 1, 1, 13, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			o, state, clock := newTestOscillator(25, tt.policy)

			o.Start()
			clock.Advance(20 * time.Minute) // 12:30, off until 13:10
			require.Equal(t, PhaseOff, o.Phase())

			clock.Jump(20 * time.Minute) // wall clock now reads 12:50
			o.OnClockCorrected(20 * time.Minute)
			assert.Equal(t, tt.wallNext, o.NextTransition())

			clock.Advance(tt.remaining - time.Second)
			assert.False(t, state.FanAuto)
			clock.Advance(time.Second)
			assert.True(t, state.FanAuto)
		})
	}
}

func TestOscillatorClockCorrectionIgnoredWhileOn(t *testing.T) {
	for _, policy := range []AnchorPolicy{AnchorOriginal, AnchorShift} {
		t.Run(string(policy), func(t *testing.T) {
			o, state, clock := newTestOscillator(25, policy)

			o.Start()
			clock.Advance(5 * time.Minute)
			before := o.NextTransition()

			clock.Jump(20 * time.Minute)
			o.OnClockCorrected(20 * time.Minute)
			assert.Equal(t, before, o.NextTransition())

			clock.Advance(10*time.Minute - time.Second)
			assert.True(t, state.FanAuto)
			clock.Advance(time.Second)
			assert.False(t, state.FanAuto)
		})
	}
}

func TestOscillatorBackwardCorrection(t *testing.T) {
	o, state, clock := newTestOscillator(25, AnchorOriginal)

	o.Start()
	clock.Advance(20 * time.Minute) // 12:30

	clock.Jump(-10 * time.Minute) // wall reads 12:20
	o.OnClockCorrected(-10 * time.Minute)
	assert.Equal(t, time.Date(2024, 1, 1, 13, 10, 0, 0, time.UTC), o.NextTransition())

	clock.Advance(50*time.Minute - time.Second)
	assert.False(t, state.FanAuto)
	clock.Advance(time.Second)
	assert.True(t, state.FanAuto)
}

func TestParseAnchorPolicy(t *testing.T) {
	p, err := parseAnchorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, AnchorOriginal, p)

	p, err = parseAnchorPolicy("shift")
	require.NoError(t, err)
	assert.Equal(t, AnchorShift, p)

	_, err = parseAnchorPolicy("sideways")
	assert.Error(t, err)
}

func TestOscillatorZeroDutyThenRaised(t *testing.T) {
	o, state, clock := newTestOscillator(0, AnchorOriginal)

	o.Start()
	state.FanDutyCycle = 25
	o.OnDutyCycleChanged()
	assert.False(t, state.FanAuto)

	clock.Advance(time.Hour)
	assert.True(t, state.FanAuto)
	assert.Equal(t, rigStart.Add(75*time.Minute), o.NextTransition())
}
