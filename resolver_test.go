package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		state DemandState
		want  Outputs
	}{
		{"idle", DemandState{}, Outputs{}},
		{"manual fan", DemandState{FanManual: true}, Outputs{Fan: true}},
		{"manual fan does not start auto hrv",
			DemandState{Config: Config{HrvTargetMode: ModeAuto}, FanManual: true},
			Outputs{Fan: true}},
		{"auto demand ignored in manual mode", DemandState{FanAuto: true}, Outputs{}},
		{"auto demand in auto mode",
			DemandState{Config: Config{FanTargetMode: ModeAuto}, FanAuto: true},
			Outputs{Fan: true}},
		{"auto demand drives auto hrv",
			DemandState{Config: Config{FanTargetMode: ModeAuto, HrvTargetMode: ModeAuto}, FanAuto: true},
			Outputs{Fan: true, Hrv: true}},
		{"manual hrv alone", DemandState{HrvManual: true}, Outputs{Hrv: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.state))
		})
	}
}

func TestResolveAllStates(t *testing.T) {
	modes := []Mode{ModeManual, ModeAuto}
	flags := []bool{false, true}

	for _, fm := range modes {
		for _, hm := range modes {
			for _, manual := range flags {
				for _, auto := range flags {
					for _, hrvManual := range flags {
						s := DemandState{
							Config:    Config{FanTargetMode: fm, HrvTargetMode: hm},
							FanManual: manual,
							FanAuto:   auto,
							HrvManual: hrvManual,
						}
						name := fmt.Sprintf("%s/%s/m=%t/a=%t/h=%t", fm, hm, manual, auto, hrvManual)
						t.Run(name, func(t *testing.T) {
							out := Resolve(s)
							cycling := auto && fm == ModeAuto

							assert.Equal(t, manual || cycling, out.Fan)
							assert.Equal(t, hrvManual || (cycling && hm == ModeAuto), out.Hrv)
							if !hrvManual && !cycling {
								assert.False(t, out.Hrv, "manual fan demand must not run the HRV")
							}
						})
					}
				}
			}
		}
	}
}
