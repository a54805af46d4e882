package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventLog appends every attribute change to a file, one line per change,
// prefixed with the milliseconds since the log was opened. It implements
// Notifier.
type EventLog struct {
	mu     sync.Mutex
	f      *os.File
	basems int64
	now    func() time.Time
}

func openEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log file '%s': %w", path, err)
	}
	log.Debugf("Opened event log file '%s'", path)

	l := &EventLog{f: f, now: time.Now}
	l.basems = l.now().UnixMilli()
	return l, nil
}

func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		if err := l.f.Close(); err != nil {
			log.Warnf("Error on closing event log: %s", err)
		}
		l.f = nil
	}
}

func (l *EventLog) Changed(attr Attribute, value interface{}) {
	l.LogS(fmt.Sprintf("%s %s", attr, attributeValueString(value)))
}

func (l *EventLog) LogS(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return
	}

	msd := l.now().UnixMilli() - l.basems
	if _, err := fmt.Fprintf(l.f, "%08d %s\n", msd, s); err != nil {
		log.Error("EventLog write failed: ", err)
		return
	}
	if err := l.f.Sync(); err != nil {
		log.Error("EventLog sync failed: ", err)
	}
}
