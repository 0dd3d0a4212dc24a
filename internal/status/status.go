// Package status holds the user-facing progress stream of a campaign.
//
// A Sink receives human-readable progress lines and elapsed-time stamps. It is
// append-only and has no schema; operator diagnostics go through the logger.
package status

import (
	"sync"

	"github.com/aristath/simcampaign/internal/log"
)

// Sink receives progress lines.
type Sink interface {
	// Update appends one line.
	Update(msg string)
	// Elapsed appends the time elapsed since the sink was created.
	Elapsed()
}

// Discard is a Sink that drops everything.
const Discard = discard(0)

type discard int

func (discard) Update(string) {}
func (discard) Elapsed()      {}

// Func adapts a function to a Sink. Elapsed is ignored.
type Func func(msg string)

func (f Func) Update(msg string) { f(msg) }
func (Func) Elapsed()            {}

// Multi fans every line out to all sinks, in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Update(msg string) {
	for _, s := range m {
		s.Update(msg)
	}
}

func (m multi) Elapsed() {
	for _, s := range m {
		s.Elapsed()
	}
}

// Logger mirrors progress lines into logger at info level.
func Logger(logger log.Logger) Sink {
	return loggerSink{logger: logger.WithValues(log.Kv{"svc": "status"})}
}

type loggerSink struct{ logger log.Logger }

func (s loggerSink) Update(msg string) { s.logger.Infof("%s", msg) }
func (loggerSink) Elapsed()            {}

// Buffer keeps every line in memory.
type Buffer struct {
	mu    sync.Mutex
	lines []string
}

// Update implements Sink.
func (b *Buffer) Update(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, msg)
}

// Elapsed implements Sink. Buffers have no clock, the stamp is not recorded.
func (b *Buffer) Elapsed() {}

// Lines returns a copy of the recorded lines.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}
