package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogRecord is one captured log call, with handler and call attributes
// flattened into Attrs
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

type logSink struct {
	mu      sync.Mutex
	records []LogRecord
}

// LogCapture is a slog.Handler that keeps every record in memory. Loggers
// derived with With share the same sink.
type LogCapture struct {
	sink  *logSink
	attrs []slog.Attr
	group string
}

// NewTestLogger returns a logger writing to a new LogCapture
func NewTestLogger(t *testing.T) (*slog.Logger, *LogCapture) {
	t.Helper()
	h := &LogCapture{sink: &logSink{}}
	return slog.New(h), h
}

// Enabled implements slog.Handler
func (h *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (h *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]string, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		flatten(attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, h.group, a)
		return true
	})

	h.sink.mu.Lock()
	h.sink.records = append(h.sink.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	h.sink.mu.Unlock()
	return nil
}

// WithAttrs implements slog.Handler
func (h *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup implements slog.Handler
func (h *LogCapture) WithGroup(name string) slog.Handler {
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(dst, key, ga)
		}
		return
	}
	dst[key] = fmt.Sprint(v.Any())
}

// Records returns a copy of the captured records
func (h *LogCapture) Records() []LogRecord {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]LogRecord(nil), h.sink.records...)
}

// Find returns the first record whose message contains msg
func (h *LogCapture) Find(msg string) (LogRecord, bool) {
	for _, r := range h.Records() {
		if strings.Contains(r.Message, msg) {
			return r, true
		}
	}
	return LogRecord{}, false
}

// AssertLogged fails t unless a record at level contains msg
func (h *LogCapture) AssertLogged(t *testing.T, level slog.Level, msg string) {
	t.Helper()
	for _, r := range h.Records() {
		if r.Level == level && strings.Contains(r.Message, msg) {
			return
		}
	}
	t.Errorf("no %s log containing %q", level, msg)
	h.dump(t)
}

// AssertNotLogged fails t if secret appears in any message or attribute
func (h *LogCapture) AssertNotLogged(t *testing.T, secret string) {
	t.Helper()
	for _, r := range h.Records() {
		if strings.Contains(r.Message, secret) {
			t.Errorf("secret logged in message %q", r.Message)
		}
		for k, v := range r.Attrs {
			if strings.Contains(v, secret) {
				t.Errorf("secret logged in attribute %s of %q", k, r.Message)
			}
		}
	}
}

func (h *LogCapture) dump(t *testing.T) {
	t.Helper()
	for _, r := range h.Records() {
		t.Logf("  [%s] %s %v", r.Level, r.Message, r.Attrs)
	}
}
