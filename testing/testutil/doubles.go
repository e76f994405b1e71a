package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/havenhq/chronicle/adapters"
)

// RecordingPublisher collects every batch it is asked to publish.
type RecordingPublisher struct {
	mu      sync.Mutex
	Err     error
	Batches [][]adapters.EventRecord
}

// Publish records the batch and returns Err.
func (p *RecordingPublisher) Publish(ctx context.Context, records []adapters.EventRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Batches = append(p.Batches, records)
	return p.Err
}

// Published returns all published records in order.
func (p *RecordingPublisher) Published() []adapters.EventRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []adapters.EventRecord
	for _, b := range p.Batches {
		out = append(out, b...)
	}
	return out
}

// LogEntry is one call captured by RecordingLogger.
type LogEntry struct {
	Level   string
	Message string
	Args    []interface{}
}

// RecordingLogger captures log calls for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

func (l *RecordingLogger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Message: msg, Args: args})
}

// Debug records a debug entry.
func (l *RecordingLogger) Debug(msg string, args ...interface{}) { l.record("debug", msg, args) }

// Info records an info entry.
func (l *RecordingLogger) Info(msg string, args ...interface{}) { l.record("info", msg, args) }

// Warn records a warn entry.
func (l *RecordingLogger) Warn(msg string, args ...interface{}) { l.record("warn", msg, args) }

// Error records an error entry.
func (l *RecordingLogger) Error(msg string, args ...interface{}) { l.record("error", msg, args) }

// Level returns the entries logged at level.
func (l *RecordingLogger) Level(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.Entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Arg returns the value logged under key, formatted with %v, or "".
func (e LogEntry) Arg(key string) string {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return fmt.Sprintf("%v", e.Args[i+1])
		}
	}
	return ""
}
