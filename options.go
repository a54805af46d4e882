package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options is the daemon's YAML configuration file. Persisted ventilation
// settings (modes, timeout, duty cycle) live in the state store, not here.
type Options struct {
	Logging LoggingOptions `yaml:"logging"`
	Store   StoreOptions   `yaml:"store"`
	Outputs OutputOptions  `yaml:"outputs"`
	HTTP    HTTPOptions    `yaml:"http"`
	Mqtt    MqttOptions    `yaml:"mqtt"`
	HomeKit HomeKitOptions `yaml:"homekit"`
	Clock   ClockOptions   `yaml:"clock"`
}

type LoggingOptions struct {
	Level string `yaml:"level"`
}

type StoreOptions struct {
	Path string `yaml:"path"`
}

const (
	driverGpio   = "gpio"
	driverSerial = "serial"
	driverLog    = "log"
)

type OutputOptions struct {
	Driver string        `yaml:"driver"`
	Gpio   GpioOptions   `yaml:"gpio"`
	Serial SerialOptions `yaml:"serial"`
}

type GpioOptions struct {
	Chip      string `yaml:"chip"`
	FanLine   int    `yaml:"fan_line"`
	HrvLine   int    `yaml:"hrv_line"`
	ActiveLow bool   `yaml:"active_low"`
}

type SerialOptions struct {
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	FanChannel uint8  `yaml:"fan_channel"`
	HrvChannel uint8  `yaml:"hrv_channel"`
}

type HTTPOptions struct {
	Port int `yaml:"port"`
}

// MqttOptions enables the MQTT bridge when URL is set.
type MqttOptions struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type HomeKitOptions struct {
	Enabled     bool   `yaml:"enabled"`
	Name        string `yaml:"name"`
	Pin         string `yaml:"pin"`
	StoragePath string `yaml:"storage_path"`
}

type ClockOptions struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	JumpThreshold time.Duration `yaml:"jump_threshold"`
	Anchor        string        `yaml:"anchor"`
}

func DefaultOptions() Options {
	return Options{
		Logging: LoggingOptions{Level: "info"},
		Store:   StoreOptions{Path: "/var/lib/ventcontrol/state.db"},
		Outputs: OutputOptions{
			Driver: driverLog,
			Gpio: GpioOptions{
				Chip:      "gpiochip0",
				FanLine:   17,
				HrvLine:   27,
				ActiveLow: true,
			},
			Serial: SerialOptions{
				Device:     "/dev/ttyUSB0",
				Baud:       9600,
				FanChannel: 1,
				HrvChannel: 2,
			},
		},
		HTTP: HTTPOptions{Port: 8080},
		Mqtt: MqttOptions{
			ClientID:    "ventcontrol",
			TopicPrefix: "ventcontrol",
		},
		HomeKit: HomeKitOptions{
			Name:        "Ventilation",
			Pin:         "00102003",
			StoragePath: "/var/lib/ventcontrol/homekit",
		},
		Clock: ClockOptions{
			ProbeInterval: 30 * time.Second,
			JumpThreshold: 5 * time.Second,
			Anchor:        string(AnchorOriginal),
		},
	}
}

// loadOptions reads path on top of DefaultOptions. Unknown keys are errors.
func loadOptions(path string) (Options, error) {
	if path == "" {
		return Options{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read config file: %w", err)
	}
	return parseOptions(b)
}

func parseOptions(b []byte) (Options, error) {
	opts := DefaultOptions()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&opts); err != nil {
		if errors.Is(err, io.EOF) {
			// empty file
			return opts, nil
		}
		return Options{}, fmt.Errorf("decode config yaml: %w", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Options{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return opts, nil
}

func (o *Options) Validate() error {
	if o.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if o.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}

	switch o.Outputs.Driver {
	case driverLog:
	case driverGpio:
		if o.Outputs.Gpio.Chip == "" {
			return errors.New("outputs.gpio.chip must not be empty")
		}
		if o.Outputs.Gpio.FanLine < 0 || o.Outputs.Gpio.HrvLine < 0 {
			return errors.New("outputs.gpio lines must be >= 0")
		}
		if o.Outputs.Gpio.FanLine == o.Outputs.Gpio.HrvLine {
			return errors.New("outputs.gpio.fan_line and hrv_line must differ")
		}
	case driverSerial:
		if o.Outputs.Serial.Device == "" {
			return errors.New("outputs.serial.device must not be empty")
		}
		if o.Outputs.Serial.Baud <= 0 {
			return errors.New("outputs.serial.baud must be > 0")
		}
		if o.Outputs.Serial.FanChannel == o.Outputs.Serial.HrvChannel {
			return errors.New("outputs.serial.fan_channel and hrv_channel must differ")
		}
	default:
		return fmt.Errorf("outputs.driver must be %q, %q or %q", driverGpio, driverSerial, driverLog)
	}

	if o.HTTP.Port <= 0 || o.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}

	if o.Mqtt.URL != "" && o.Mqtt.TopicPrefix == "" {
		return errors.New("mqtt.topic_prefix must not be empty when mqtt.url is set")
	}

	if o.HomeKit.Enabled {
		if len(o.HomeKit.Pin) != 8 {
			return errors.New("homekit.pin must be 8 digits")
		}
		if o.HomeKit.StoragePath == "" {
			return errors.New("homekit.storage_path must not be empty")
		}
	}

	if o.Clock.ProbeInterval < time.Second {
		return errors.New("clock.probe_interval must be at least 1s")
	}
	if o.Clock.JumpThreshold <= 0 {
		return errors.New("clock.jump_threshold must be > 0")
	}
	if _, err := parseAnchorPolicy(o.Clock.Anchor); err != nil {
		return fmt.Errorf("clock.anchor: %w", err)
	}

	return nil
}
