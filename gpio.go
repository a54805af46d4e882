package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/warthog618/gpiod"
)

// gpioRelays drives the fan and HRV relays from two lines of one gpiochip.
// With activeLow set a logical "on" pulls the line low, which is what most
// relay boards expect.
type gpioRelays struct {
	chip *gpiod.Chip
	fan  *gpioLine
	hrv  *gpioLine
}

type gpioLine struct {
	name string
	line *gpiod.Line
}

func openGpioRelays(chipName string, fanOffset, hrvOffset int, activeLow bool) (*gpioRelays, error) {
	chip, err := gpiod.NewChip(chipName, gpiod.WithConsumer("ventcontrol"))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chipName, err)
	}

	r := &gpioRelays{chip: chip}
	r.fan, err = requestLine(chip, "fan", fanOffset, activeLow)
	if err != nil {
		chip.Close()
		return nil, err
	}
	r.hrv, err = requestLine(chip, "hrv", hrvOffset, activeLow)
	if err != nil {
		r.fan.line.Close()
		chip.Close()
		return nil, err
	}

	log.Infof("GPIO relays on %s: fan line %d, hrv line %d, active low %t", chipName, fanOffset, hrvOffset, activeLow)
	return r, nil
}

func requestLine(chip *gpiod.Chip, name string, offset int, activeLow bool) (*gpioLine, error) {
	opts := []gpiod.LineReqOption{gpiod.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiod.AsActiveLow)
	}

	line, err := chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", name, offset, err)
	}
	return &gpioLine{name: name, line: line}, nil
}

func (l *gpioLine) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return l.line.SetValue(v)
}

func (r *gpioRelays) Close() error {
	r.fan.line.Close()
	r.hrv.line.Close()
	return r.chip.Close()
}
