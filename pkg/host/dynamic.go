package host

import (
	"fmt"
	"strings"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/native"
	"github.com/daimatz/jvmengine/pkg/vm"
)

// Lookup is a MethodHandles.Lookup bound to its caller.
type Lookup struct {
	Caller *vm.Class
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Descriptor string
	Sig        *classfile.MethodDescriptor
}

func (t *MethodType) String() string { return t.Descriptor }

// MethodHandle is a directly invocable reference to a method or a Go
// function produced by a bootstrap method.
type MethodHandle struct {
	Name string
	fn   func(args []vm.Value) (vm.Value, error)
}

func (h *MethodHandle) String() string { return "MethodHandle(" + h.Name + ")" }

// Invoke calls the handle with whole-form arguments.
func (h *MethodHandle) Invoke(args []vm.Value) (vm.Value, error) { return h.fn(args) }

// CallSite is a linked invokedynamic site with a constant target.
type CallSite struct {
	Target *MethodHandle
}

func (u *Universe) NewLookup(caller *vm.Class) (vm.Value, error) {
	return vm.RefValue(&Lookup{Caller: caller}), nil
}

func (u *Universe) MethodType(descriptor string) (vm.Value, error) {
	mt, err := parseMethodType(descriptor)
	if err != nil {
		return vm.Value{}, err
	}
	return vm.RefValue(mt), nil
}

func parseMethodType(descriptor string) (*MethodType, error) {
	sig, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	return &MethodType{Descriptor: descriptor, Sig: sig}, nil
}

func (u *Universe) CreateCallableHandle(kind vm.RefKind, m *vm.Method) (vm.Value, error) {
	h := &MethodHandle{Name: m.String()}
	switch kind {
	case vm.RefInvokeStatic, vm.RefInvokeSpecial:
		h.fn = func(args []vm.Value) (vm.Value, error) { return u.call(m, args, false) }
	case vm.RefInvokeVirtual, vm.RefInvokeInterface:
		h.fn = func(args []vm.Value) (vm.Value, error) { return u.call(m, args, true) }
	case vm.RefNewInvokeSpecial:
		h.fn = func(args []vm.Value) (vm.Value, error) {
			obj, err := u.AllocateUninitialized(m.Class)
			if err != nil {
				return vm.Value{}, err
			}
			if _, err := u.call(m, append([]vm.Value{obj}, args...), false); err != nil {
				return vm.Value{}, err
			}
			return obj, nil
		}
	default:
		return vm.Value{}, fmt.Errorf("method handle kind %d is not supported", kind)
	}
	return vm.RefValue(h), nil
}

func (u *Universe) InvokeHandle(handle vm.Value, args []vm.Value) (vm.Value, error) {
	h, ok := handle.Ref().(*MethodHandle)
	if !ok {
		return vm.Value{}, vm.NewFault("java/lang/ClassCastException", fmt.Sprintf("%s is not a method handle", handle))
	}
	return h.Invoke(args)
}

func (u *Universe) DynamicInvoker(callSite vm.Value) (vm.Value, error) {
	cs, ok := callSite.Ref().(*CallSite)
	if !ok || cs.Target == nil {
		return vm.Value{}, vm.NewFault("java/lang/BootstrapMethodError",
			fmt.Sprintf("bootstrap method returned %s, not a call site", callSite))
	}
	return vm.RefValue(cs.Target), nil
}

const (
	concatFactory = "java/lang/invoke/StringConcatFactory"
	concatArg     = '\u0001'
	concatConst   = '\u0002'
)

// registerConcat registers the bootstrap methods javac uses for string
// concatenation. The variable-arity constants arrive unpacked after the
// recipe.
func registerConcat(r *native.Registry) {
	r.RegisterStatic(concatFactory, "makeConcatWithConstants",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;",
		func(_ vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) < 4 {
				return vm.Value{}, fmt.Errorf("makeConcatWithConstants: got %d arguments", len(args))
			}
			recipe, ok := args[3].Ref().(string)
			if !ok {
				return vm.Value{}, vm.NewFault("java/lang/invoke/StringConcatException", "recipe is not a string")
			}
			return concatSite(recipe, args[4:])
		})
	r.RegisterStatic(concatFactory, "makeConcat",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;",
		func(_ vm.Value, args []vm.Value) (vm.Value, error) {
			mt, ok := args[2].Ref().(*MethodType)
			if !ok {
				return vm.Value{}, vm.NewFault("java/lang/invoke/StringConcatException", "missing method type")
			}
			return concatSite(strings.Repeat(string(concatArg), len(mt.Sig.Params)), nil)
		})
}

func concatSite(recipe string, constants []vm.Value) (vm.Value, error) {
	target := &MethodHandle{Name: "concat", fn: func(args []vm.Value) (vm.Value, error) {
		var b strings.Builder
		ai, ci := 0, 0
		for _, r := range recipe {
			switch r {
			case concatArg:
				if ai >= len(args) {
					return vm.Value{}, vm.NewFault("java/lang/invoke/StringConcatException", "too few arguments for recipe")
				}
				b.WriteString(native.Format(args[ai]))
				ai++
			case concatConst:
				if ci >= len(constants) {
					return vm.Value{}, vm.NewFault("java/lang/invoke/StringConcatException", "too few constants for recipe")
				}
				b.WriteString(native.Format(constants[ci]))
				ci++
			default:
				b.WriteRune(r)
			}
		}
		return vm.RefValue(b.String()), nil
	}}
	return vm.RefValue(&CallSite{Target: target}), nil
}
