// Package notify delivers the short user-facing status messages produced by
// workspace operations.
package notify

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Event struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier interface {
	Notify(level Level, message string)
}

// Log writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (n *Log) Notify(level Level, message string) {
	if level == LevelError {
		n.logger.Warn("notify", "level", string(level), "message", message)
		return
	}
	n.logger.Info("notify", "level", string(level), "message", message)
}

// Desktop raises an OS notification.
type Desktop struct {
	title string
	send  func(title, message, icon string) error
}

func NewDesktop(title string) *Desktop {
	if strings.TrimSpace(title) == "" {
		title = "Pilot"
	}
	return &Desktop{title: title, send: func(title, message, icon string) error {
		return beeep.Notify(title, message, icon)
	}}
}

func (n *Desktop) Notify(_ Level, message string) {
	message = strings.TrimSpace(message)
	if len(message) > 800 {
		message = message[:800] + "..."
	}
	_ = n.send(n.title, message, "")
}

// Feed keeps the most recent events for clients polling the workspace.
type Feed struct {
	mu     sync.Mutex
	limit  int
	events []Event
	now    func() time.Time
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 50
	}
	return &Feed{limit: limit, now: time.Now}
}

func (f *Feed) Notify(level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, Event{Level: level, Message: message, Timestamp: f.now()})
	if len(f.events) > f.limit {
		f.events = append([]Event(nil), f.events[len(f.events)-f.limit:]...)
	}
}

// Drain returns and forgets the buffered events.
func (f *Feed) Drain() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.events
	f.events = nil
	if events == nil {
		return []Event{}
	}
	return events
}

// Multi fans an event out to every notifier.
type Multi []Notifier

func (m Multi) Notify(level Level, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, message)
		}
	}
}
