package vm

import (
	"fmt"
	"slices"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/trace"
)

// invokeDynamic links and calls an invokedynamic site. The site is linked
// afresh on every execution.
func (e *Executor) invokeDynamic(index uint16) error {
	info, err := e.resolver.ResolveDynamicCall(index)
	if err != nil {
		return err
	}
	c, err := e.resolver.Resolve(info.Bootstrap.MethodRef)
	if err != nil {
		return err
	}
	bsm, ok := c.(MethodHandleConst)
	if !ok {
		return fmt.Errorf("bootstrap method #%d is %T, expected a method handle", info.Bootstrap.MethodRef, c)
	}

	bsmArgs, err := e.bootstrapArgs(info)
	if err != nil {
		return err
	}
	e.thread.event(e.frame, trace.KindCall, e.pc, e.op.String(), bsm.Method.String())
	site, err := e.host.InvokeHandle(bsm.Value, bsmArgs)
	if err != nil {
		return hostError(err)
	}
	target, err := e.host.DynamicInvoker(site)
	if err != nil {
		return hostError(err)
	}

	sig, err := classfile.ParseMethodDescriptor(info.Descriptor)
	if err != nil {
		return err
	}
	args := make([]Value, 0, len(sig.Params))
	for i := len(sig.Params) - 1; i >= 0; i-- {
		v, err := narrow(e.frame.PopTyped(sig.Params[i]), sig.Params[i])
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	slices.Reverse(args)

	ret, err := e.host.InvokeHandle(target, args)
	if err != nil {
		return hostError(err)
	}
	if sig.Return.IsVoid() {
		return nil
	}
	ret, err = narrow(ret, sig.Return)
	if err != nil {
		return err
	}
	e.frame.PushValue(ret)
	return nil
}

// bootstrapArgs assembles the lookup, name and method type followed by the
// static arguments.
func (e *Executor) bootstrapArgs(info *DynamicCallInfo) ([]Value, error) {
	lookup, err := e.host.NewLookup(e.frame.Class)
	if err != nil {
		return nil, hostError(err)
	}
	mt, err := e.host.MethodType(info.Descriptor)
	if err != nil {
		return nil, hostError(err)
	}
	args := []Value{lookup, RefValue(info.Name), mt}
	for _, idx := range info.Bootstrap.BootstrapArguments {
		c, err := e.resolver.Resolve(idx)
		if err != nil {
			return nil, err
		}
		v, err := HostValue(c)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}
