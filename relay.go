package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

const relayFrameStart = 0xA0

var errRelayPortClosed = errors.New("relay port not open")

// serialRelayBoard talks to the common CH340 based USB relay boards. Each
// command is a four byte frame: start byte, channel, state, and the low byte
// of the sum of the first three.
type serialRelayBoard struct {
	device string
	baud   int
	port   *serial.Port
	mu     sync.Mutex
	stats  relayStats
}

type relayStats struct {
	frames int64 // frames written
	werrs  int64 // write errors
	opens  int64 // port (re)opens
	oerrs  int64 // failed opens
}

type relayChannel struct {
	board   *serialRelayBoard
	channel uint8
}

var relayWriteTimeout = time.Second

func relayFrame(channel uint8, on bool) []byte {
	state := byte(0x00)
	if on {
		state = 0x01
	}
	return []byte{relayFrameStart, channel, state, relayFrameStart + channel + state}
}

func (b *serialRelayBoard) openSerial() error {
	log.Printf("opening relay serial interface: %s", b.device)
	if b.port != nil {
		b.port.Close()
	}

	c := &serial.Config{Name: b.device, Baud: b.baud, ReadTimeout: relayWriteTimeout}
	var err error
	b.port, err = serial.OpenPort(c)
	if err != nil {
		b.port = nil
		b.stats.oerrs++
		return err
	}

	b.stats.opens++
	return nil
}

func (b *serialRelayBoard) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.openSerial()
}

func (b *serialRelayBoard) Channel(ch uint8) Output {
	return &relayChannel{board: b, channel: ch}
}

// sendFrame reopens the port once if the previous write failed.
func (b *serialRelayBoard) sendFrame(buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		if err := b.openSerial(); err != nil {
			return fmt.Errorf("%w: %s", errRelayPortClosed, err)
		}
	}

	_, err := b.port.Write(buf)
	if err != nil {
		log.Errorf("error writing to relay serial: %s", err.Error())
		b.stats.werrs++
		b.port.Close()
		b.port = nil
		return err
	}
	b.stats.frames++
	return nil
}

// statsString returns the counters collected since the previous call and
// clears them.
func (b *serialRelayBoard) statsString() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ostats := b.stats
	b.stats = relayStats{}
	return fmt.Sprintf("%+v", ostats)
}

func (b *serialRelayBoard) statsPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info("#STATS# ", b.statsString())
		case <-ctx.Done():
			return
		}
	}
}

func (b *serialRelayBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (r *relayChannel) Set(on bool) error {
	log.Debugf("relay channel %d %s", r.channel, onOffToString(on))
	return r.board.sendFrame(relayFrame(r.channel, on))
}

// logOutput only logs, for running without relay hardware.
type logOutput string

func (o logOutput) Set(on bool) error {
	log.Infof("%s output %s", string(o), onOffToString(on))
	return nil
}
