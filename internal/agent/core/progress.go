package core

import (
	"fmt"
	"log"
	"sync"
)

// Progress event types emitted by the pipeline, in run order. The four
// specialist start/end pairs interleave freely with each other.
const (
	EventQuestionGeneration = "question_generation"
	EventQuestionsGenerated = "questions_generated"
	EventParallelExecution  = "parallel_execution"
	EventSynthesis          = "synthesis"
	EventDeepReflection     = "deep_reflection"
	EventComplete           = "complete"
)

// SpecialistEventType builds the per-role event name, e.g. "research_started".
func SpecialistEventType(role, phase string) string {
	return fmt.Sprintf("%s_%s", role, phase)
}

// Per-role event phases.
const (
	PhaseStarted   = "started"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// ProgressReporter receives fire-and-forget progress events. Implementations
// must not panic and must be safe to call from concurrent specialist tasks.
// The pipeline never retains events; history, if any, belongs to the reporter.
type ProgressReporter interface {
	Report(eventType string, payload interface{})
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Report(string, interface{}) {}

// LogReporter writes events to a standard logger.
type LogReporter struct {
	Logger *log.Logger
}

func (r *LogReporter) Report(eventType string, payload interface{}) {
	if r.Logger == nil {
		return
	}
	switch p := payload.(type) {
	case string:
		r.Logger.Printf("%s: %s", eventType, p)
	default:
		r.Logger.Printf("%s", eventType)
	}
}

// ProgressEvent is the queued form of a report.
type ProgressEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ChannelReporter decouples concurrent emitters from a single consumer: events
// are enqueued onto a buffered channel and drained by one goroutine that calls
// the sink in order. Emission never blocks; if the buffer is full the event is
// dropped, since progress is advisory.
type ChannelReporter struct {
	ch     chan ProgressEvent
	done   chan struct{}
	closed sync.Once
}

// NewChannelReporter starts the consumer goroutine. Callers must Close when
// the run finishes to stop it.
func NewChannelReporter(buffer int, sink func(ProgressEvent)) *ChannelReporter {
	if buffer <= 0 {
		buffer = 64
	}
	r := &ChannelReporter{
		ch:   make(chan ProgressEvent, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for ev := range r.ch {
			if sink != nil {
				sink(ev)
			}
		}
	}()
	return r
}

func (r *ChannelReporter) Report(eventType string, payload interface{}) {
	defer func() { recover() }() // send on closed channel loses the event, nothing more
	select {
	case r.ch <- ProgressEvent{Type: eventType, Payload: payload}:
	default:
	}
}

// Close stops the consumer after draining queued events.
func (r *ChannelReporter) Close() {
	r.closed.Do(func() { close(r.ch) })
	<-r.done
}

// MultiReporter fans one event out to several reporters.
type MultiReporter []ProgressReporter

func (m MultiReporter) Report(eventType string, payload interface{}) {
	for _, r := range m {
		if r != nil {
			r.Report(eventType, payload)
		}
	}
}

// report is the pipeline-side helper tolerating a nil reporter.
func report(r ProgressReporter, eventType string, payload interface{}) {
	if r == nil {
		return
	}
	r.Report(eventType, payload)
}
