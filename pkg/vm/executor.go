package vm

import (
	"errors"
	"fmt"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/trace"
)

// Executor runs one method activation over its frame.
type Executor struct {
	thread   *Thread
	engine   *Engine
	host     ObjectModel
	frame    *Frame
	code     *classfile.CodeAttribute
	resolver *Resolver
	stream   *Stream

	// pc is the address of the instruction being executed.
	pc int
	op Opcode
}

func newExecutor(t *Thread, f *Frame, code *classfile.CodeAttribute, r *Resolver) *Executor {
	return &Executor{
		thread:   t,
		engine:   t.engine,
		host:     t.engine.host,
		frame:    f,
		code:     code,
		resolver: r,
		stream:   NewStream(code.Code),
	}
}

// Run executes until a return instruction or an unhandled fault. The
// returned value is unset for void returns.
func (e *Executor) Run() (Value, error) {
	for !e.stream.EOF() {
		e.pc = e.stream.Pos()
		e.frame.pc = e.pc
		ret, done, err := e.step()
		if err != nil {
			f, ok := asFault(err)
			if !ok {
				return Value{}, e.fatal(err)
			}
			handled, herr := e.dispatch(f)
			if herr != nil {
				return Value{}, e.fatal(herr)
			}
			if !handled {
				return Value{}, f
			}
			continue
		}
		if done {
			return ret, nil
		}
	}
	// Execution ran past the last instruction.
	return Value{}, nil
}

func (e *Executor) step() (ret Value, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret, done = Value{}, false
			switch r := r.(type) {
			case error:
				err = &FatalError{Op: e.op.String(), PC: e.pc, Err: r}
			default:
				err = &FatalError{Op: e.op.String(), PC: e.pc, Err: fmt.Errorf("%v", r)}
			}
		}
	}()

	b := e.stream.ReadU8()
	op, err := DecodeOpcode(b)
	if err != nil {
		return Value{}, false, &FatalError{Op: fmt.Sprintf("0x%02X", b), PC: e.pc, Err: err}
	}
	e.op = op
	e.thread.event(e.frame, trace.KindInstruction, e.pc, op.String(), "")
	return e.execute(op)
}

// fatal stamps err with the failing instruction unless it already carries one.
func (e *Executor) fatal(err error) error {
	var fe *FatalError
	if errors.As(err, &fe) {
		if fe.Op == "" {
			fe.Op, fe.PC = e.op.String(), e.pc
		}
		return err
	}
	if _, ok := asFault(err); ok {
		return err
	}
	return &FatalError{Op: e.op.String(), PC: e.pc, Err: err}
}

// dispatch searches the exception table for a handler covering pc. On a
// match the operand stack holds only the exception and execution resumes
// at the handler.
func (e *Executor) dispatch(f *Fault) (bool, error) {
	for _, h := range e.code.ExceptionHandlers {
		if !h.Covers(e.pc) {
			continue
		}
		exc, err := e.exception(f)
		if err != nil {
			return false, err
		}
		if h.CatchType != 0 {
			cls, err := e.resolver.ResolveClass(h.CatchType)
			if err != nil {
				return false, err
			}
			ok, err := e.host.IsInstanceOf(exc, cls)
			if err != nil {
				return false, fmt.Errorf("matching %s against %s: %w", f.Class, cls.Name, err)
			}
			if !ok {
				continue
			}
		}
		if int(h.HandlerPC) >= e.stream.Len() {
			return false, fmt.Errorf("handler pc %d out of range", h.HandlerPC)
		}
		e.thread.event(e.frame, trace.KindCatch, e.pc, "", f.Error())
		e.frame.ClearStack()
		e.frame.Push(exc)
		e.stream.Seek(int(h.HandlerPC))
		return true, nil
	}
	return false, nil
}

// exception returns the fault's exception object, asking the host to
// create it on first use.
func (e *Executor) exception(f *Fault) (Value, error) {
	if f.Exception.IsReference() && !f.Exception.IsNull() {
		return f.Exception, nil
	}
	v, err := e.host.NewThrowable(f.Class, f.Message)
	if err != nil {
		return Value{}, fmt.Errorf("creating %s: %w", f.Class, err)
	}
	f.Exception = v
	return v, nil
}

// throw builds a fault for an exception raised by the engine itself.
func throw(class, format string, args ...any) *Fault {
	return NewFault(class, fmt.Sprintf(format, args...))
}

func (e *Executor) jump(offset int) {
	e.stream.Seek(e.pc + offset)
}

func (e *Executor) popInt() int32 {
	v := e.frame.Pop()
	x, ok := v.EffectiveInt()
	if !ok {
		panic(fmt.Errorf("expected int, got %s", v.Kind()))
	}
	return x
}

func (e *Executor) popFloat() float32 {
	v := e.frame.Pop()
	if v.Kind() != KindFloat {
		panic(fmt.Errorf("expected float, got %s", v.Kind()))
	}
	return v.Float()
}

func (e *Executor) popRef() Value {
	v := e.frame.Pop()
	if !v.IsReference() {
		panic(fmt.Errorf("expected reference, got %s", v.Kind()))
	}
	return v
}

func (e *Executor) pushBool(b bool) {
	if b {
		e.frame.Push(IntValue(1))
	} else {
		e.frame.Push(IntValue(0))
	}
}
