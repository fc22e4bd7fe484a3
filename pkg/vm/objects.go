package vm

import (
	"fmt"
	"strings"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

func (e *Executor) newObject(index uint16) error {
	cls, err := e.resolver.ResolveClass(index)
	if err != nil {
		return err
	}
	if cls.Flags&(classfile.AccInterface|classfile.AccAbstract) != 0 || cls.IsArray() {
		return throw("java/lang/InstantiationError", "%s", cls.Name)
	}
	if e.engine.opts.Construction == Eager {
		v, err := e.host.AllocateUninitialized(cls)
		if err != nil {
			return hostError(err)
		}
		e.frame.Push(v)
		return nil
	}
	e.frame.Push(PlaceholderValue(&Placeholder{Class: cls}))
	return nil
}

// construct runs constructor m. A placeholder receiver is replaced by a
// freshly allocated instance, and once the constructor completes every
// alias of the placeholder in this frame is rewritten to that instance.
func (e *Executor) construct(m *Method, args []Value) error {
	opts := InvokeOptions{Recursive: e.engine.opts.Recursive, Depth: e.frame.Depth + 1}
	p, ok := args[0].Placeholder()
	if !ok {
		_, _, err := e.thread.Invoke(m, args, opts)
		return err
	}

	obj, err := e.host.AllocateUninitialized(p.Class)
	if err != nil {
		return hostError(err)
	}
	args[0] = obj
	if _, _, err := e.thread.Invoke(m, args, opts); err != nil {
		return err
	}
	n := e.frame.ReplacePlaceholder(p, obj)
	e.thread.log.Trace().Str("class", p.Class.Name).Int("slots", n).Msg("placeholder replaced")
	return nil
}

func (e *Executor) staticField(index uint16) (*Field, error) {
	f, err := e.resolver.ResolveField(index)
	if err != nil {
		return nil, err
	}
	if !f.IsStatic() {
		return nil, throw("java/lang/IncompatibleClassChangeError", "expected static field %s.%s", f.Class.Name, f.Name)
	}
	return f, nil
}

func (e *Executor) instanceField(index uint16) (*Field, error) {
	f, err := e.resolver.ResolveField(index)
	if err != nil {
		return nil, err
	}
	if f.IsStatic() {
		return nil, throw("java/lang/IncompatibleClassChangeError", "expected non-static field %s.%s", f.Class.Name, f.Name)
	}
	return f, nil
}

// receiver checks the object operand of getfield and putfield.
func (e *Executor) receiver(obj Value, f *Field) error {
	if obj.IsNull() {
		return throw("java/lang/NullPointerException", "cannot access field %s on null", f.Name)
	}
	if _, ok := obj.Placeholder(); ok {
		return fmt.Errorf("%s: field %s of an unconstructed object", e.op, f.Name)
	}
	return nil
}

func (e *Executor) pushField(v Value, f *Field) error {
	v, err := narrow(v, f.Type())
	if err != nil {
		return err
	}
	e.frame.PushValue(v)
	return nil
}

func (e *Executor) getstatic(index uint16) error {
	f, err := e.staticField(index)
	if err != nil {
		return err
	}
	v, err := e.host.GetField(NullValue(), f)
	if err != nil {
		return hostError(err)
	}
	return e.pushField(v, f)
}

func (e *Executor) putstatic(index uint16) error {
	f, err := e.staticField(index)
	if err != nil {
		return err
	}
	v, err := Coerce(e.frame.PopTyped(f.Type()), f.Type())
	if err != nil {
		return err
	}
	if err := e.host.SetField(NullValue(), f, v); err != nil {
		return hostError(err)
	}
	return nil
}

func (e *Executor) getfield(index uint16) error {
	f, err := e.instanceField(index)
	if err != nil {
		return err
	}
	obj := e.popRef()
	if err := e.receiver(obj, f); err != nil {
		return err
	}
	v, err := e.host.GetField(obj, f)
	if err != nil {
		return hostError(err)
	}
	return e.pushField(v, f)
}

func (e *Executor) putfield(index uint16) error {
	f, err := e.instanceField(index)
	if err != nil {
		return err
	}
	v := e.frame.PopTyped(f.Type())
	obj := e.popRef()
	if err := e.receiver(obj, f); err != nil {
		return err
	}
	v, err = Coerce(v, f.Type())
	if err != nil {
		return err
	}
	if err := e.host.SetField(obj, f, v); err != nil {
		return hostError(err)
	}
	return nil
}

func (e *Executor) checkcast(index uint16) error {
	cls, err := e.resolver.ResolveClass(index)
	if err != nil {
		return err
	}
	v := e.frame.Peek()
	if !v.IsReference() {
		return fmt.Errorf("checkcast: expected reference, got %s", v.Kind())
	}
	if v.IsNull() {
		return nil
	}
	ok, err := e.host.IsInstanceOf(v, cls)
	if err != nil {
		return hostError(err)
	}
	if !ok {
		return throw("java/lang/ClassCastException", "class %s cannot be cast to class %s",
			e.className(v), strings.ReplaceAll(cls.Name, "/", "."))
	}
	return nil
}

func (e *Executor) instanceOf(index uint16) error {
	cls, err := e.resolver.ResolveClass(index)
	if err != nil {
		return err
	}
	v := e.popRef()
	if v.IsNull() {
		e.pushBool(false)
		return nil
	}
	ok, err := e.host.IsInstanceOf(v, cls)
	if err != nil {
		return hostError(err)
	}
	e.pushBool(ok)
	return nil
}

func (e *Executor) athrow() error {
	v := e.popRef()
	if v.IsNull() {
		return throw("java/lang/NullPointerException", "throw of null")
	}
	cls, err := e.host.ClassOf(v)
	if err != nil {
		return hostError(err)
	}
	return &Fault{Class: cls.Name, Exception: v}
}
