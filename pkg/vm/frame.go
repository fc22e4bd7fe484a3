package vm

import (
	"fmt"
	"math"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/trace"
)

// Frame represents a stack frame for method execution.
type Frame struct {
	Thread *Thread
	Class  *Class
	Method *Method
	// Depth is the call nesting level, used for diagnostics only.
	Depth int

	Locals []Value
	Stack  []Value

	// pc is the start of the instruction being executed.
	pc int
}

// NewFrame creates a frame whose locals are seeded from args. Args must be in
// slot form: longs and doubles already split into two chunks.
func NewFrame(thread *Thread, method *Method, maxLocals, maxStack int, args []Value, depth int) *Frame {
	if len(args) > maxLocals {
		maxLocals = len(args)
	}
	f := &Frame{
		Thread: thread,
		Method: method,
		Depth:  depth,
		Locals: make([]Value, maxLocals),
		Stack:  make([]Value, 0, maxStack),
	}
	if method != nil {
		f.Class = method.Class
	}
	copy(f.Locals, args)
	return f
}

// Push pushes a value onto the operand stack.
func (f *Frame) Push(v Value) {
	f.Stack = append(f.Stack, v)
	if f.Thread != nil {
		f.Thread.traceValue(f, trace.KindPush, v)
	}
}

// Pop pops a value from the operand stack.
func (f *Frame) Pop() Value {
	n := len(f.Stack)
	if n == 0 {
		panic(ErrStackUnderflow)
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	if f.Thread != nil {
		f.Thread.traceValue(f, trace.KindPop, v)
	}
	return v
}

// Peek returns the top of the stack without removing it.
func (f *Frame) Peek() Value {
	if len(f.Stack) == 0 {
		panic(ErrStackUnderflow)
	}
	return f.Stack[len(f.Stack)-1]
}

func (f *Frame) ClearStack() { f.Stack = f.Stack[:0] }

func (f *Frame) PushLong(v int64) {
	lo, hi := LongValue(v).split()
	f.Push(lo)
	f.Push(hi)
}

func (f *Frame) PopLong() int64 {
	hi := f.Pop()
	lo := f.Pop()
	return int64(joinBits(lo, hi))
}

func (f *Frame) PushDouble(v float64) {
	lo, hi := DoubleValue(v).split()
	f.Push(lo)
	f.Push(hi)
}

func (f *Frame) PopDouble() float64 {
	hi := f.Pop()
	lo := f.Pop()
	return math.Float64frombits(joinBits(lo, hi))
}

// PushValue pushes a whole value, splitting longs and doubles into chunks.
func (f *Frame) PushValue(v Value) {
	if v.IsWide() {
		lo, hi := v.split()
		f.Push(lo)
		f.Push(hi)
		return
	}
	f.Push(v)
}

// PopTyped pops a value of the given type, joining chunks for long and double.
func (f *Frame) PopTyped(t classfile.FieldType) Value {
	switch t {
	case "J":
		return LongValue(f.PopLong())
	case "D":
		return DoubleValue(f.PopDouble())
	}
	return f.Pop()
}

// GetLocal returns the value at the given local variable index.
func (f *Frame) GetLocal(index int) (Value, error) {
	if index < 0 || index >= len(f.Locals) {
		panic(fmt.Sprintf("local variable index out of range: index=%d, max=%d", index, len(f.Locals)))
	}
	v := f.Locals[index]
	if v.kind == KindUnset {
		return Value{}, fmt.Errorf("%w %d", ErrUnsetLocal, index)
	}
	return v, nil
}

// SetLocal sets the value at the given local variable index.
func (f *Frame) SetLocal(index int, v Value) {
	if index < 0 || index >= len(f.Locals) {
		panic(fmt.Sprintf("local variable index out of range: index=%d, max=%d", index, len(f.Locals)))
	}
	f.Locals[index] = v
}

// ReplacePlaceholder rewrites every local and stack slot holding p to v and
// returns the number of slots rewritten.
func (f *Frame) ReplacePlaceholder(p *Placeholder, v Value) int {
	n := 0
	for i, s := range f.Locals {
		if s.kind == KindPlaceholder && s.ref == p {
			f.Locals[i] = v
			n++
		}
	}
	for i, s := range f.Stack {
		if s.kind == KindPlaceholder && s.ref == p {
			f.Stack[i] = v
			n++
		}
	}
	return n
}

// ToSlots converts whole-form arguments into local variable slot form.
func ToSlots(args []Value) []Value {
	slots := make([]Value, 0, len(args)+2)
	for _, a := range args {
		if a.IsWide() {
			lo, hi := a.split()
			slots = append(slots, lo, hi)
			continue
		}
		slots = append(slots, a)
	}
	return slots
}

// PC returns the address of the instruction being executed.
func (f *Frame) PC() int { return f.pc }
