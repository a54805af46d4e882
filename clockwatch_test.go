package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTimeSource struct {
	wall time.Time
	mono time.Duration
}

func newTestWatcher(threshold time.Duration) (*clockWatcher, *fakeTimeSource, *[]time.Duration) {
	src := &fakeTimeSource{wall: rigStart}
	var offsets []time.Duration
	w := newClockWatcher(threshold, func(offset time.Duration) {
		offsets = append(offsets, offset)
	})
	w.wall = func() time.Time { return src.wall }
	w.mono = func() time.Duration { return src.mono }
	w.reset()
	return w, src, &offsets
}

func (s *fakeTimeSource) tick(d time.Duration) {
	s.wall = s.wall.Add(d)
	s.mono += d
}

func TestClockWatcherSteadyClock(t *testing.T) {
	w, src, offsets := newTestWatcher(5 * time.Second)

	for i := 0; i < 5; i++ {
		src.tick(30 * time.Second)
		src.wall = src.wall.Add(100 * time.Millisecond) // slew below threshold
		w.probe()
	}
	assert.Empty(t, *offsets)
}

func TestClockWatcherDetectsJump(t *testing.T) {
	w, src, offsets := newTestWatcher(5 * time.Second)

	src.tick(30 * time.Second)
	src.wall = src.wall.Add(20 * time.Minute)
	w.probe()
	assert.Equal(t, []time.Duration{20 * time.Minute}, *offsets)

	// reported once
	src.tick(30 * time.Second)
	w.probe()
	assert.Len(t, *offsets, 1)

	src.wall = src.wall.Add(-time.Hour)
	w.probe()
	assert.Equal(t, []time.Duration{20 * time.Minute, -time.Hour}, *offsets)
}

func TestClockWatcherStartStop(t *testing.T) {
	w, _, _ := newTestWatcher(time.Second)
	assert.NoError(t, w.Start(time.Second))
	w.Stop()
}
