package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/trace"
)

// InvokeOptions controls a single call.
type InvokeOptions struct {
	// Virtual re-resolves the method against the receiver's runtime class.
	Virtual bool
	// Recursive allows interpreting the callee. Constructors with bytecode
	// are always interpreted.
	Recursive bool
	// Depth is the nesting level of the new frame.
	Depth int
}

// Thread is the call controller of one logical thread of control. It owns
// the stack of active frames and must not be shared between goroutines.
type Thread struct {
	ID     string
	engine *Engine
	frames []*Frame
	// base is the depth of the thread that was delegating on the same
	// goroutine when this one was created.
	base int
	log  zerolog.Logger
}

func newThread(e *Engine) *Thread {
	id := uuid.NewString()
	return &Thread{
		ID:     id,
		engine: e,
		log:    e.log.With().Str("thread", id).Logger(),
	}
}

func (t *Thread) Engine() *Engine { return t.engine }

// Depth is the call nesting of the thread, including the frames of the
// threads whose delegated calls it is running.
func (t *Thread) Depth() int { return t.base + len(t.frames) }

// Frames returns a snapshot of the active frames, outermost first.
func (t *Thread) Frames() []*Frame {
	return append([]*Frame(nil), t.frames...)
}

// Invoke calls m with whole-form args, receiver first for instance methods.
// ok reports whether a value was returned.
func (t *Thread) Invoke(m *Method, args []Value, opts InvokeOptions) (Value, bool, error) {
	host := t.engine.host
	if !m.IsStatic() {
		if len(args) == 0 {
			return Value{}, false, fatalf("invoke %s: missing receiver", m)
		}
		if args[0].IsNull() {
			return Value{}, false, NewFault("java/lang/NullPointerException",
				fmt.Sprintf("cannot invoke %s on null", m))
		}
	}
	if opts.Virtual {
		if _, isPlaceholder := args[0].Placeholder(); isPlaceholder {
			return Value{}, false, fatalf("invoke %s: receiver is not constructed", m)
		}
		cls, err := host.ClassOf(args[0])
		if err != nil {
			return Value{}, false, hostError(err)
		}
		if cls != m.Class {
			rm, err := host.ResolveMethod(cls, m.Name, m.Descriptor)
			if err != nil {
				return Value{}, false, hostError(err)
			}
			m = rm
		}
	}

	sig, err := m.Signature()
	if err != nil {
		return Value{}, false, fatalf("invoke %s: %w", m, err)
	}

	cf, code, available := t.engine.code(m)
	switch {
	case m.IsConstructor() && available:
	case !opts.Recursive || !available:
		return t.delegate(m, sig, args)
	}
	return t.interpret(m, sig, cf, code, args, opts.Depth)
}

func (t *Thread) delegate(m *Method, sig *classfile.MethodDescriptor, args []Value) (Value, bool, error) {
	receiver := NullValue()
	params := args
	if !m.IsStatic() {
		receiver, params = args[0], args[1:]
	}
	if len(params) != len(sig.Params) {
		return Value{}, false, fatalf("invoke %s: got %d arguments, want %d", m, len(params), len(sig.Params))
	}
	coerced := make([]Value, len(params))
	for i, p := range sig.Params {
		v, err := Coerce(params[i], p)
		if err != nil {
			return Value{}, false, err
		}
		coerced[i] = v
	}

	t.log.Debug().Str("method", m.String()).Msg("delegating call to host")
	done := t.engine.delegating(t)
	ret, err := t.engine.host.Invoke(receiver, m, coerced)
	done()
	if err != nil {
		return Value{}, false, hostError(err)
	}
	if sig.Return.IsVoid() {
		return Value{}, false, nil
	}
	ret, err = narrow(ret, sig.Return)
	if err != nil {
		return Value{}, false, err
	}
	return ret, true, nil
}

func (t *Thread) interpret(m *Method, sig *classfile.MethodDescriptor, cf *classfile.ClassFile, code *classfile.CodeAttribute, args []Value, depth int) (Value, bool, error) {
	if t.Depth() >= t.engine.opts.MaxDepth {
		return Value{}, false, NewFault("java/lang/StackOverflowError",
			fmt.Sprintf("call depth exceeded %d", t.engine.opts.MaxDepth))
	}

	frame := NewFrame(t, m, int(code.MaxLocals), int(code.MaxStack), ToSlots(args), depth)
	t.frames = append(t.frames, frame)
	defer func() { t.frames = t.frames[:len(t.frames)-1] }()

	if m.IsSynchronized() {
		var key any = m.Class
		if !m.IsStatic() {
			key = args[0].Ref()
		}
		t.engine.monitors.Enter(key)
		defer func() {
			if err := t.engine.monitors.Exit(key); err != nil {
				t.log.Error().Err(err).Str("method", m.String()).Msg("releasing method monitor")
			}
		}()
	}

	t.event(frame, trace.KindCall, 0, "", "")
	t.log.Debug().Int("depth", depth).Str("method", m.String()).Msg("call")

	exec := newExecutor(t, frame, code, t.engine.resolver(cf, m.Class))
	ret, err := exec.Run()
	if err != nil {
		if f, ok := asFault(err); ok {
			t.event(frame, trace.KindThrow, exec.pc, "", f.Error())
		}
		return Value{}, false, err
	}
	t.event(frame, trace.KindReturn, exec.pc, "", ret.String())

	if sig.Return.IsVoid() {
		return Value{}, false, nil
	}
	if ret.Kind() == KindUnset {
		return Value{}, false, fatalf("%s returned no value, want %s", m, sig.Return)
	}
	ret, err = narrow(ret, sig.Return)
	if err != nil {
		return Value{}, false, err
	}
	return ret, true, nil
}

func (t *Thread) event(f *Frame, kind trace.Kind, pc int, op, detail string) {
	if !t.engine.tracing() {
		return
	}
	ev := trace.Event{
		Thread: t.ID,
		Depth:  f.Depth,
		Kind:   kind,
		PC:     pc,
		Op:     op,
		Detail: detail,
	}
	if f.Method != nil {
		ev.Method = f.Method.String()
	}
	t.engine.emit(ev)
}

// traceValue is called by the frame on every push and pop.
func (t *Thread) traceValue(f *Frame, kind trace.Kind, v Value) {
	if !t.engine.tracing() {
		return
	}
	t.event(f, kind, f.pc, "", v.String())
}

// hostError classifies an error returned by the host object model.
func hostError(err error) error {
	if _, ok := asFault(err); ok || isFatal(err) {
		return err
	}
	f := NewFault("java/lang/RuntimeException", err.Error())
	f.Cause = err
	return f
}
