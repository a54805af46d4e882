package main

import (
	"fmt"
	"math"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	log "github.com/sirupsen/logrus"
)

// Ventilation is a HomeKit fan accessory carrying two FanV2 services, one
// for the furnace fan and one for the HRV.
type Ventilation struct {
	*accessory.Accessory
	Fan *FanSvc
	Hrv *FanSvc
}

// FanSvc is a FanV2 service. The fan service also carries the duty cycle as
// RotationSpeed and the auto-off timeout as SetDuration.
type FanSvc struct {
	*service.Service

	Active         *characteristic.Active
	TargetFanState *characteristic.TargetFanState
	RotationSpeed  *characteristic.RotationSpeed
	SetDuration    *characteristic.SetDuration
}

func NewFanSvc(name string, withSettings bool) *FanSvc {
	svc := FanSvc{}
	svc.Service = service.New(service.TypeFanV2)

	n := characteristic.NewName()
	n.SetValue(name)
	svc.AddCharacteristic(n.Characteristic)

	svc.Active = characteristic.NewActive()
	svc.AddCharacteristic(svc.Active.Characteristic)

	svc.TargetFanState = characteristic.NewTargetFanState()
	svc.AddCharacteristic(svc.TargetFanState.Characteristic)

	if withSettings {
		svc.RotationSpeed = characteristic.NewRotationSpeed()
		svc.AddCharacteristic(svc.RotationSpeed.Characteristic)

		svc.SetDuration = characteristic.NewSetDuration()
		svc.SetDuration.MaxValue = 255 * 60
		svc.SetDuration.StepValue = 60
		svc.AddCharacteristic(svc.SetDuration.Characteristic)
	}

	return &svc
}

func NewVentilation(info accessory.Info) *Ventilation {
	acc := Ventilation{}
	acc.Accessory = accessory.New(info, accessory.TypeFan)

	acc.Fan = NewFanSvc("Fan", true)
	acc.AddService(acc.Fan.Service)

	acc.Hrv = NewFanSvc("HRV", false)
	acc.AddService(acc.Hrv.Service)
	return &acc
}

func activeValue(on bool) int {
	if on {
		return characteristic.ActiveActive
	}
	return characteristic.ActiveInactive
}

func modeValue(m Mode) int {
	if m == ModeAuto {
		return characteristic.TargetFanStateAuto
	}
	return characteristic.TargetFanStateManual
}

func durationToMinutes(seconds int) uint8 {
	m := (seconds + 30) / 60
	if m < 0 {
		return 0
	}
	if m > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(m)
}

// homeKitBridge keeps the accessory in sync with the ventilator in both
// directions.
type homeKitBridge struct {
	acc *Ventilation
	v   Ventilator
	t   hc.Transport
}

func newHomeKitBridge(name string, v Ventilator) *homeKitBridge {
	b := &homeKitBridge{v: v}
	b.acc = NewVentilation(accessory.Info{
		Name:         name,
		Manufacturer: "ventcontrol",
		Model:        "Fan+HRV",
	})

	// The controller may clamp, ignore or undo a write, so every remote
	// update is followed by a read-back of the live values.
	b.acc.Fan.Active.OnValueRemoteUpdate(func(value int) {
		v.WriteFanActive(value == characteristic.ActiveActive)
		b.sync()
	})
	b.acc.Fan.TargetFanState.OnValueRemoteUpdate(func(value int) {
		v.WriteFanMode(Mode(value))
		b.sync()
	})
	b.acc.Fan.RotationSpeed.OnValueRemoteUpdate(func(value float64) {
		v.WriteFanDutyCycle(uint8(math.Round(math.Max(0, math.Min(value, maxDutyCycle)))))
		b.sync()
	})
	b.acc.Fan.SetDuration.OnValueRemoteUpdate(func(value int) {
		v.WriteFanTimeoutMinutes(durationToMinutes(value))
		b.sync()
	})
	b.acc.Hrv.Active.OnValueRemoteUpdate(func(value int) {
		v.WriteHrvActive(value == characteristic.ActiveActive)
		b.sync()
	})
	b.acc.Hrv.TargetFanState.OnValueRemoteUpdate(func(value int) {
		v.WriteHrvMode(Mode(value))
		b.sync()
	})

	return b
}

// sync copies every current value onto the accessory.
func (b *homeKitBridge) sync() {
	st := b.v.Status()
	b.acc.Fan.Active.SetValue(activeValue(st.Outputs.Fan))
	b.acc.Fan.TargetFanState.SetValue(modeValue(st.FanMode))
	b.acc.Fan.RotationSpeed.SetValue(float64(st.FanDutyCycle))
	b.acc.Fan.SetDuration.SetValue(int(st.FanTimeoutMinutes) * 60)
	b.acc.Hrv.Active.SetValue(activeValue(st.Outputs.Hrv))
	b.acc.Hrv.TargetFanState.SetValue(modeValue(st.HrvMode))
}

func (b *homeKitBridge) Changed(attr Attribute, value interface{}) {
	switch attr {
	case AttrFanActive:
		b.acc.Fan.Active.SetValue(activeValue(value.(bool)))
	case AttrFanMode:
		b.acc.Fan.TargetFanState.SetValue(modeValue(value.(Mode)))
	case AttrFanDutyCycle:
		b.acc.Fan.RotationSpeed.SetValue(float64(value.(uint8)))
	case AttrFanTimeout:
		b.acc.Fan.SetDuration.SetValue(int(value.(uint8)) * 60)
	case AttrHrvActive:
		b.acc.Hrv.Active.SetValue(activeValue(value.(bool)))
	case AttrHrvMode:
		b.acc.Hrv.TargetFanState.SetValue(modeValue(value.(Mode)))
	}
}

// Start publishes the accessory and serves HomeKit until Stop.
func (b *homeKitBridge) Start(opts HomeKitOptions) error {
	t, err := hc.NewIPTransport(hc.Config{Pin: opts.Pin, StoragePath: opts.StoragePath}, b.acc.Accessory)
	if err != nil {
		return fmt.Errorf("homekit transport: %w", err)
	}
	b.t = t

	log.WithField("name", opts.Name).Info("HomeKit accessory published")
	go t.Start()
	return nil
}

func (b *homeKitBridge) Stop() {
	if b.t != nil {
		<-b.t.Stop()
	}
}
