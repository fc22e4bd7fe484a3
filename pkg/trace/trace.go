// Package trace carries the engine's diagnostic events: decoded
// instructions, operand stack traffic, calls and throws.
package trace

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Kind classifies an Event.
type Kind string

const (
	KindInstruction Kind = "insn"
	KindPush        Kind = "push"
	KindPop         Kind = "pop"
	KindCall        Kind = "call"
	KindReturn      Kind = "return"
	KindThrow       Kind = "throw"
	KindCatch       Kind = "catch"
)

// Event is one diagnostic record.
type Event struct {
	Seq    uint64 `cbor:"1,keyasint"`
	Thread string `cbor:"2,keyasint"`
	Depth  int    `cbor:"3,keyasint"`
	Kind   Kind   `cbor:"4,keyasint"`
	Method string `cbor:"5,keyasint,omitempty"`
	PC     int    `cbor:"6,keyasint"`
	Op     string `cbor:"7,keyasint,omitempty"`
	Detail string `cbor:"8,keyasint,omitempty"`
}

// Sink receives events. Emit errors are reported to the caller, which
// is expected to ignore them.
type Sink interface {
	Emit(Event) error
}

// LogSink writes events as zerolog trace records.
type LogSink struct {
	Logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Emit(ev Event) error {
	e := s.Logger.Trace().
		Uint64("seq", ev.Seq).
		Str("thread", ev.Thread).
		Int("depth", ev.Depth).
		Str("kind", string(ev.Kind)).
		Int("pc", ev.PC)
	if ev.Method != "" {
		e = e.Str("method", ev.Method)
	}
	if ev.Op != "" {
		e = e.Str("opcode", ev.Op)
	}
	if ev.Detail != "" {
		e = e.Str("detail", ev.Detail)
	}
	e.Msg("vm")
	return nil
}

// Tee fans events out to several sinks. Every sink sees every event even
// when an earlier one fails.
type Tee []Sink

func (t Tee) Emit(ev Event) error {
	var errs []error
	for _, s := range t {
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Buffer keeps events in memory. It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Emit(ev Event) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}
