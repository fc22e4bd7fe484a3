package host

import (
	"fmt"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// Invoke runs a method the engine delegated: Go natives from the registry,
// otherwise bytecode on a fresh engine thread.
func (u *Universe) Invoke(receiver vm.Value, m *vm.Method, args []vm.Value) (vm.Value, error) {
	if m.IsAbstract() {
		return vm.Value{}, vm.NewFault("java/lang/AbstractMethodError", m.String())
	}
	if m.IsStatic() {
		if err := u.initialize(m.Class); err != nil {
			return vm.Value{}, err
		}
	}
	if fn, ok := u.natives.Lookup(m.Class.Name, m.Name, m.Descriptor); ok {
		return fn(receiver, args)
	}
	if m.IsNative() {
		return vm.Value{}, vm.NewFault("java/lang/UnsatisfiedLinkError", m.String())
	}
	all := args
	if !m.IsStatic() {
		all = append([]vm.Value{receiver}, args...)
	}
	return u.run(m, all)
}

// run interprets m on a new thread of the attached engine.
func (u *Universe) run(m *vm.Method, args []vm.Value) (vm.Value, error) {
	e := u.engine.Load()
	if e == nil {
		return vm.Value{}, fmt.Errorf("calling %s: no engine attached", m)
	}
	v, _, err := e.NewThread().Invoke(m, args, vm.InvokeOptions{Recursive: true})
	return v, err
}

// call invokes m with whole-form args, receiver first for instance
// methods. With virtual set the method is selected by the receiver's
// class. Natives receive the arguments as given, so variable-arity
// bootstrap methods see their trailing arguments unpacked.
func (u *Universe) call(m *vm.Method, args []vm.Value, virtual bool) (vm.Value, error) {
	receiver := vm.NullValue()
	params := args
	if !m.IsStatic() {
		if len(args) == 0 || args[0].IsNull() {
			return vm.Value{}, vm.NewFault("java/lang/NullPointerException", fmt.Sprintf("cannot invoke %s on null", m))
		}
		receiver, params = args[0], args[1:]
		if virtual {
			cls, err := u.ClassOf(receiver)
			if err != nil {
				return vm.Value{}, err
			}
			if m, err = u.ResolveMethod(cls, m.Name, m.Descriptor); err != nil {
				return vm.Value{}, err
			}
		}
	}
	if fn, ok := u.natives.Lookup(m.Class.Name, m.Name, m.Descriptor); ok {
		if m.IsStatic() {
			if err := u.initialize(m.Class); err != nil {
				return vm.Value{}, err
			}
		}
		return fn(receiver, params)
	}
	return u.run(m, args)
}

// toString runs a toString override defined in bytecode. ok is false when
// the object relies on a built-in implementation.
func (u *Universe) toString(o *Object) (string, bool) {
	m, err := u.ResolveMethod(o.class, "toString", "()Ljava/lang/String;")
	if err != nil {
		return "", false
	}
	if info := infoOf(m.Class); info == nil || info.synthetic {
		return "", false
	}
	v, err := u.call(m, []vm.Value{vm.RefValue(o)}, false)
	if err != nil {
		u.log.Debug().Err(err).Str("class", o.class.Name).Msg("toString failed")
		return "", false
	}
	if v.IsNull() {
		return "null", true
	}
	s, ok := v.Ref().(string)
	return s, ok
}
