package main

import (
	"strconv"
	"strings"
)

func modeToString(mode Mode) string {
	switch mode {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

func stringToMode(mode string) (Mode, bool) {
	switch strings.ToLower(mode) {
	case "manual":
		return ModeManual, true
	case "auto":
		return ModeAuto, true
	default:
		return ModeManual, false
	}
}

func (m Mode) String() string {
	return modeToString(m)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(modeToString(m)), nil
}

func onOffToString(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// stringToOnOff accepts the payloads home automation systems tend to send
// for a switch.
func stringToOnOff(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true, true
	case "off", "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// stringToUint8 parses an integer payload, tolerating the trailing ".0" some
// MQTT clients append to numbers.
func stringToUint8(s string) (uint8, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}
