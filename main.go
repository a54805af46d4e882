package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type outputCloser func() error

const relayStatsInterval = 15 * time.Minute

// openOutputs returns the fan and HRV relays for the configured driver.
func openOutputs(ctx context.Context, o OutputOptions) (Output, Output, outputCloser, error) {
	switch o.Driver {
	case driverGpio:
		r, err := openGpioRelays(o.Gpio.Chip, o.Gpio.FanLine, o.Gpio.HrvLine, o.Gpio.ActiveLow)
		if err != nil {
			return nil, nil, nil, err
		}
		return r.fan, r.hrv, r.Close, nil
	case driverSerial:
		b := &serialRelayBoard{device: o.Serial.Device, baud: o.Serial.Baud}
		if err := b.Open(); err != nil {
			return nil, nil, nil, fmt.Errorf("error opening serial port: %w", err)
		}
		go b.statsPoller(ctx, relayStatsInterval)
		return b.Channel(o.Serial.FanChannel), b.Channel(o.Serial.HrvChannel), b.Close, nil
	default:
		return logOutput("fan"), logOutput("hrv"), func() error { return nil }, nil
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	httpPort := flag.Int("httpport", 0, "HTTP port to listen on (overrides http.port)")
	serialPort := flag.String("serial", "", "path to relay board serial port (selects the serial driver)")
	dbPath := flag.String("db", "", "path to state database (overrides store.path)")
	eventLogPath := flag.String("eventlog", "", "append attribute changes to this file")
	doDebugLog := flag.Bool("debug", false, "enable debug log level")

	flag.Parse()

	opts := DefaultOptions()
	if *configPath != "" {
		var err error
		opts, err = loadOptions(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
	}

	if *httpPort != 0 {
		opts.HTTP.Port = *httpPort
	}
	if *serialPort != "" {
		opts.Outputs.Driver = driverSerial
		opts.Outputs.Serial.Device = *serialPort
	}
	if *dbPath != "" {
		opts.Store.Path = *dbPath
	}
	if *doDebugLog {
		opts.Logging.Level = "debug"
	}

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %s\n", err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	loglevel, err := log.ParseLevel(opts.Logging.Level)
	if err != nil {
		log.Fatalf("invalid logging.level: %s", err)
	}
	log.SetLevel(loglevel)
	if loglevel < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	policy, _ := parseAnchorPolicy(opts.Clock.Anchor)

	store, err := openBoltStore(opts.Store.Path)
	if err != nil {
		log.Fatalf("unable to open state store: %s", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fan, hrv, closeOutputs, err := openOutputs(ctx, opts.Outputs)
	if err != nil {
		log.Panicf("unable to open outputs: %s", err)
	}
	defer closeOutputs()

	// the loop outlives ctx so shutdown can still switch the outputs off
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	loop := NewLoop()
	go loop.Run(loopCtx)

	dispatcher := newEventDispatcher()
	go dispatcher.run(loopCtx)

	cache := newCache(dispatcher)
	metrics := newMetrics()
	v := newLoopVentilator(loop, nil)
	notify := multiNotifier{cache, metrics}

	var hk *homeKitBridge
	if opts.HomeKit.Enabled {
		hk = newHomeKitBridge(opts.HomeKit.Name, v)
		notify = append(notify, hk)
	}

	var mq *mqttBridge
	if opts.Mqtt.URL != "" {
		mq = newMqttBridge(opts.Mqtt, v)
		notify = append(notify, mq)
	}

	if *eventLogPath != "" {
		el, err := openEventLog(*eventLogPath)
		if err != nil {
			log.Panicf("unable to open event log: %s", err)
		}
		defer el.Close()
		notify = append(notify, el)
	}

	c := NewController(store, newRealClock(loop), fan, hrv, notify, WithAnchorPolicy(policy))
	v.c = c
	if err := loop.Do(c.Start); err != nil {
		log.Fatalf("unable to start controller: %s", err)
	}

	cache.seed(v)
	metrics.seed(v)

	if hk != nil {
		hk.sync()
		if err := hk.Start(opts.HomeKit); err != nil {
			log.Errorf("HomeKit disabled: %s", err)
		} else {
			defer hk.Stop()
		}
	}

	if mq != nil {
		if err := mq.Connect(); err != nil {
			log.Error(err)
		}
		defer mq.Close()
	}

	watcher := newClockWatcher(opts.Clock.JumpThreshold, v.OnClockCorrected)
	if err := watcher.Start(opts.Clock.ProbeInterval); err != nil {
		log.Fatalf("unable to start clock watcher: %s", err)
	}
	defer watcher.Stop()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("sd_notify failed: %s", err)
	} else if ok {
		log.Debug("notified systemd of readiness")
	}

	err = webserver(ctx, opts.HTTP.Port, newRouter(v, cache, dispatcher, metrics))
	if err != nil {
		log.Errorf("http server: %s", err)
	}

	log.Info("shutting down")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := loop.Do(c.Stop); err != nil {
		log.Errorf("unable to stop controller: %s", err)
	}
}
