// Package status renders human-facing progress for compile tasks.
//
// Reporters are notification sinks only; nothing they do feeds back into the build.
package status

import (
	"log/slog"
	"sync"
)

// Reporter receives per-task notifications. Labels are the source base names.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Start(label string)
	Succeed(label string)
	Fail(label string, diagnostic string)
}

// NoopReporter discards every notification.
type NoopReporter struct{}

func (NoopReporter) Start(string)        {}
func (NoopReporter) Succeed(string)      {}
func (NoopReporter) Fail(string, string) {}

// SlogReporter forwards notifications to a structured logger.
type SlogReporter struct {
	logger *slog.Logger
}

// NewSlogReporter returns a reporter logging to logger (slog.Default when nil).
func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

func (r *SlogReporter) Start(label string) {
	r.logger.Debug("Compiling", slog.String("source", label))
}

func (r *SlogReporter) Succeed(label string) {
	r.logger.Info("Compiled", slog.String("source", label))
}

func (r *SlogReporter) Fail(label, diagnostic string) {
	r.logger.Error("Compile failed", slog.String("source", label), slog.String("diagnostic", diagnostic))
}

// EventKind identifies a recorded notification.
type EventKind string

const (
	EventStart   EventKind = "start"
	EventSucceed EventKind = "succeed"
	EventFail    EventKind = "fail"
)

// Event is one notification captured by Recorder.
type Event struct {
	Kind       EventKind
	Label      string
	Diagnostic string
}

// Recorder keeps every notification in arrival order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Start(label string)   { r.add(Event{Kind: EventStart, Label: label}) }
func (r *Recorder) Succeed(label string) { r.add(Event{Kind: EventSucceed, Label: label}) }
func (r *Recorder) Fail(label, diagnostic string) {
	r.add(Event{Kind: EventFail, Label: label, Diagnostic: diagnostic})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded notifications.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded for label.
func (r *Recorder) Count(kind EventKind, label string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind && e.Label == label {
			n++
		}
	}
	return n
}

// Multi fans notifications out to several reporters.
type Multi []Reporter

func (m Multi) Start(label string) {
	for _, r := range m {
		r.Start(label)
	}
}

func (m Multi) Succeed(label string) {
	for _, r := range m {
		r.Succeed(label)
	}
}

func (m Multi) Fail(label, diagnostic string) {
	for _, r := range m {
		r.Fail(label, diagnostic)
	}
}
