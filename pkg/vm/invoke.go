package vm

import (
	"github.com/daimatz/jvmengine/pkg/classfile"
)

// popArgs pops the arguments described by sig in whole form, receiver first
// when withReceiver is set.
func (e *Executor) popArgs(sig *classfile.MethodDescriptor, withReceiver bool) []Value {
	n := len(sig.Params)
	if withReceiver {
		n++
	}
	args := make([]Value, n)
	for i := len(sig.Params) - 1; i >= 0; i-- {
		args[n-len(sig.Params)+i] = e.frame.PopTyped(sig.Params[i])
	}
	if withReceiver {
		args[0] = e.popRef()
	}
	return args
}

func (e *Executor) invoke(op Opcode, index uint16) error {
	m, err := e.resolver.ResolveMethod(index)
	if err != nil {
		return err
	}
	sig, err := m.Signature()
	if err != nil {
		return err
	}
	if (op == OpInvokestatic) != m.IsStatic() {
		return throw("java/lang/IncompatibleClassChangeError", "%s used on %s", op, m)
	}

	args := e.popArgs(sig, op != OpInvokestatic)
	if op == OpInvokespecial && m.IsConstructor() {
		return e.construct(m, args)
	}

	v, ok, err := e.thread.Invoke(m, args, InvokeOptions{
		Virtual:   op == OpInvokevirtual || op == OpInvokeinterface,
		Recursive: e.engine.opts.Recursive,
		Depth:     e.frame.Depth + 1,
	})
	if err != nil {
		return err
	}
	if ok {
		e.frame.PushValue(v)
	}
	return nil
}
