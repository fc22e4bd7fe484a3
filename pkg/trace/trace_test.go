package trace

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecorderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	want := []Event{
		{Seq: 1, Thread: "t1", Kind: KindCall, Method: "Fib.fib(I)I"},
		{Seq: 2, Thread: "t1", Depth: 1, Kind: KindInstruction, PC: 3, Op: "iload_0"},
		{Seq: 3, Thread: "t1", Depth: 1, Kind: KindPush, PC: 3, Detail: "int(5)"},
	}
	for _, ev := range want {
		if err := rec.Emit(ev); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	got, err := ReadEvents(&buf)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadEventsTruncated(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	_ = rec.Emit(Event{Seq: 1, Kind: KindInstruction, Op: "nop"})
	data := buf.Bytes()

	events, err := ReadEvents(bytes.NewReader(data[:len(data)-2]))
	if err == nil {
		t.Fatal("expected decode error for truncated stream")
	}
	if len(events) != 0 {
		t.Errorf("got %d events before error, want 0", len(events))
	}
}

func TestLogSink(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	sink := NewLogSink(logger)

	if err := sink.Emit(Event{Seq: 7, Kind: KindInstruction, PC: 12, Op: "iadd"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, s := range []string{`"opcode":"iadd"`, `"pc":12`, `"seq":7`, `"level":"trace"`} {
		if !strings.Contains(out, s) {
			t.Errorf("log output %q missing %s", out, s)
		}
	}
}

type failingSink struct{}

func (failingSink) Emit(Event) error { return errors.New("disk full") }

func TestTee(t *testing.T) {
	var a, b Buffer
	tee := Tee{&a, failingSink{}, &b}

	err := tee.Emit(Event{Seq: 1})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Tee error: got %v", err)
	}
	// 失敗したシンクの後ろにも届くこと
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("events: a=%d b=%d, want 1 each", len(a.Events()), len(b.Events()))
	}
}
