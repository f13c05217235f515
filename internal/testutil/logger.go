// Package testutil holds the fakes and helpers shared by package tests:
// an in-memory numerical backend, an input provider, pseudopotential
// datasets and loggers.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a debug logger that prints through t.Log, so its
// output shows for failing tests and under -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	logger, _ := NewRecordingLogger(t)
	return logger
}

// LogRecords collects the records of a recording logger.
type LogRecords struct {
	mu      sync.Mutex
	records []slog.Record
}

// Messages returns the messages logged at level or above, in order.
func (r *LogRecords) Messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rec := range r.records {
		if rec.Level >= level {
			out = append(out, rec.Message)
		}
	}
	return out
}

// NewRecordingLogger is NewTestLogger that also keeps every record for
// assertions on warnings.
func NewRecordingLogger(t testing.TB) (*slog.Logger, *LogRecords) {
	t.Helper()
	records := &LogRecords{}
	text := slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(&recordingHandler{records: records, next: text}), records
}

// recordingHandler stores every record and passes it on to next.
type recordingHandler struct {
	records *LogRecords
	next    slog.Handler
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *recordingHandler) Handle(ctx context.Context, rec slog.Record) error {
	h.records.mu.Lock()
	h.records.records = append(h.records.records, rec.Clone())
	h.records.mu.Unlock()
	return h.next.Handle(ctx, rec)
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{records: h.records, next: h.next.WithAttrs(attrs)}
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	return &recordingHandler{records: h.records, next: h.next.WithGroup(name)}
}

type tbWriter struct{ t testing.TB }

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
