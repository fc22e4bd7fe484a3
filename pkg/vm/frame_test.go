package vm

import (
	"errors"
	"math"
	"testing"
)

func TestFrameLongDoubleRoundTrip(t *testing.T) {
	longs := []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 0x1234_5678_9ABC_DEF0}
	for _, v := range longs {
		f := NewFrame(nil, nil, 0, 4, nil, 0)
		f.PushLong(v)
		if len(f.Stack) != 2 {
			t.Fatalf("PushLong(%d): stack has %d slots, want 2", v, len(f.Stack))
		}
		for i, s := range f.Stack {
			if s.Kind() != KindChunk {
				t.Errorf("PushLong(%d): slot %d is %s, want chunk", v, i, s.Kind())
			}
		}
		if got := f.PopLong(); got != v {
			t.Errorf("PopLong: got %d, want %d", got, v)
		}
	}

	// NaN payloads must survive bit-exactly.
	nan := math.Float64frombits(0x7FF8_0000_DEAD_BEEF)
	doubles := []float64{0, -0.0, 1.5, math.Inf(-1), math.MaxFloat64, nan}
	for _, v := range doubles {
		f := NewFrame(nil, nil, 0, 4, nil, 0)
		f.PushDouble(v)
		if got := f.PopDouble(); math.Float64bits(got) != math.Float64bits(v) {
			t.Errorf("PopDouble: got %016x, want %016x", math.Float64bits(got), math.Float64bits(v))
		}
	}
}

func TestFramePushValueAndPopTyped(t *testing.T) {
	f := NewFrame(nil, nil, 0, 8, nil, 0)
	f.PushValue(IntValue(7))
	f.PushValue(LongValue(-42))
	f.PushValue(DoubleValue(2.25))
	if len(f.Stack) != 5 {
		t.Fatalf("stack has %d slots, want 5", len(f.Stack))
	}
	if got := f.PopTyped("D"); got.Kind() != KindDouble || got.Double() != 2.25 {
		t.Errorf("PopTyped(D): got %s", got)
	}
	if got := f.PopTyped("J"); got.Kind() != KindLong || got.Long() != -42 {
		t.Errorf("PopTyped(J): got %s", got)
	}
	if got := f.PopTyped("I"); got.Int() != 7 {
		t.Errorf("PopTyped(I): got %s", got)
	}
}

func TestFramePopUnderflow(t *testing.T) {
	f := NewFrame(nil, nil, 0, 1, nil, 0)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrStackUnderflow) {
			t.Errorf("expected ErrStackUnderflow panic, got %v", r)
		}
	}()
	f.Pop()
}

func TestFrameUnsetLocal(t *testing.T) {
	f := NewFrame(nil, nil, 3, 0, []Value{IntValue(1)}, 0)
	if v, err := f.GetLocal(0); err != nil || v.Int() != 1 {
		t.Errorf("GetLocal(0): got %s, %v", v, err)
	}
	if _, err := f.GetLocal(2); !errors.Is(err, ErrUnsetLocal) {
		t.Errorf("GetLocal(2): expected ErrUnsetLocal, got %v", err)
	}
	f.SetLocal(2, NullValue())
	if v, err := f.GetLocal(2); err != nil || !v.IsNull() {
		t.Errorf("GetLocal(2) after store: got %s, %v", v, err)
	}
}

func TestNewFrameGrowsLocalsForArgs(t *testing.T) {
	f := NewFrame(nil, nil, 1, 0, []Value{IntValue(1), IntValue(2)}, 0)
	if len(f.Locals) != 2 {
		t.Errorf("locals: got %d, want 2", len(f.Locals))
	}
}

func TestReplacePlaceholder(t *testing.T) {
	p := &Placeholder{Class: &Class{Name: "Point"}}
	other := &Placeholder{Class: &Class{Name: "Point"}}
	f := NewFrame(nil, nil, 3, 4, nil, 0)
	f.SetLocal(0, PlaceholderValue(p))
	f.SetLocal(1, PlaceholderValue(other))
	f.Push(PlaceholderValue(p))
	f.Push(PlaceholderValue(p))

	obj := RefValue("constructed")
	if n := f.ReplacePlaceholder(p, obj); n != 3 {
		t.Errorf("replaced %d slots, want 3", n)
	}
	if !f.Locals[0].Same(obj) || !f.Stack[0].Same(obj) || !f.Stack[1].Same(obj) {
		t.Errorf("aliases not rewritten: locals=%v stack=%v", f.Locals, f.Stack)
	}
	if q, ok := f.Locals[1].Placeholder(); !ok || q != other {
		t.Errorf("unrelated placeholder was rewritten: %s", f.Locals[1])
	}
}

func TestToSlots(t *testing.T) {
	slots := ToSlots([]Value{IntValue(1), LongValue(-1), NullValue(), DoubleValue(1)})
	wantKinds := []Kind{KindInt, KindChunk, KindChunk, KindNull, KindChunk, KindChunk}
	if len(slots) != len(wantKinds) {
		t.Fatalf("got %d slots, want %d", len(slots), len(wantKinds))
	}
	for i, k := range wantKinds {
		if slots[i].Kind() != k {
			t.Errorf("slot %d: got %s, want %s", i, slots[i].Kind(), k)
		}
	}
	// Low half first.
	if slots[1].Int() != -1 || slots[2].Int() != -1 {
		t.Errorf("long chunks: got %s %s", slots[1], slots[2])
	}
	if uint32(slots[4].Int()) != 0 || uint32(slots[5].Int()) != 0x3FF00000 {
		t.Errorf("double chunks: got %s %s", slots[4], slots[5])
	}
}
