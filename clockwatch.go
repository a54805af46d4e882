package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// clockWatcher notices wall-clock steps (NTP sync, manual date changes) by
// comparing elapsed wall time against elapsed monotonic time on a schedule.
type clockWatcher struct {
	threshold   time.Duration
	onCorrected func(offset time.Duration)

	wall func() time.Time
	mono func() time.Duration

	mu        sync.Mutex
	wallStart time.Time
	skew      time.Duration

	cron *cron.Cron
}

func newClockWatcher(threshold time.Duration, onCorrected func(offset time.Duration)) *clockWatcher {
	base := time.Now()
	w := &clockWatcher{
		threshold:   threshold,
		onCorrected: onCorrected,
		// Round(0) strips the monotonic reading so Sub compares wall times.
		wall: func() time.Time { return time.Now().Round(0) },
		mono: func() time.Duration { return time.Since(base) },
	}
	w.reset()
	return w
}

func (w *clockWatcher) reset() {
	w.wallStart = w.wall().Add(-w.mono())
	w.skew = 0
}

// probe reports the change in skew since the last probe when it exceeds the
// threshold.
func (w *clockWatcher) probe() {
	w.mu.Lock()
	skew := w.wall().Sub(w.wallStart) - w.mono()
	offset := skew - w.skew
	if offset < w.threshold && offset > -w.threshold {
		w.mu.Unlock()
		return
	}
	w.skew = skew
	w.mu.Unlock()

	log.Infof("Wall clock moved by %s", offset)
	w.onCorrected(offset)
}

func (w *clockWatcher) Start(interval time.Duration) error {
	logger := cron.PrintfLogger(log.StandardLogger())
	w.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := w.cron.AddFunc(fmt.Sprintf("@every %s", interval), w.probe); err != nil {
		return fmt.Errorf("schedule clock probe: %w", err)
	}
	w.cron.Start()
	log.Infof("Clock watcher probing every %s, threshold %s", interval, w.threshold)
	return nil
}

func (w *clockWatcher) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}
