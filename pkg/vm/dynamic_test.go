package vm

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

const bsmDesc = "(Ljava/lang/Object;Ljava/lang/String;Ljava/lang/Object;I)Ljava/lang/Object;"

// bootstrap registers Boot.bsm, a static bootstrap taking one int static
// argument and linking to target. Every received bootstrap argument list is
// sent to seen.
func bootstrap(h *testHost, links *atomic.Int32, seen func([]Value), target func(static int32, args []Value) (Value, error)) {
	h.define(classfile.NewBuilder("Boot", "java/lang/Object"))
	h.native("Boot.bsm"+bsmDesc, classfile.AccStatic, func(_ Value, args []Value) (Value, error) {
		links.Add(1)
		if seen != nil {
			seen(args)
		}
		static := args[3].Int()
		return RefValue(&testCallSite{target: RefValue(&testHandle{
			name: "target",
			fn:   func(a []Value) (Value, error) { return target(static, a) },
		})}), nil
	})
}

// callSite adds an invokedynamic constant linked by Boot.bsm with static
// argument arg and returns its index.
func callSite(b *classfile.Builder, arg int32, name, desc string) uint16 {
	handle := b.MethodHandle(classfile.RefInvokeStatic, b.Methodref("Boot", "bsm", bsmDesc))
	return b.InvokeDynamic(b.Bootstrap(handle, b.Integer(arg)), name, desc)
}

func TestInvokeDynamic(t *testing.T) {
	t.Run("bootstrap and call arguments", func(t *testing.T) {
		h := newHost()
		var links atomic.Int32
		var bsmArgs, callArgs []Value
		bootstrap(h, &links, func(a []Value) { bsmArgs = a }, func(static int32, a []Value) (Value, error) {
			callArgs = a
			return LongValue(int64(static) + int64(a[0].Int()) + a[1].Long()), nil
		})
		v, err := runIn(t, h, DefaultOptions(), "()J", func(b *classfile.Builder) []byte {
			idx := callSite(b, 1000, "sum", "(IJ)J")
			// iconst_5, ldc2_w 100L, invokedynamic, lreturn
			return bytecode([]byte{0x08}, op16(0x14, b.Long(100)), op16(0xBA, idx), []byte{0x00, 0x00, 0xAD})
		})
		if err != nil {
			t.Fatal(err)
		}
		if v.Long() != 1105 {
			t.Errorf("got %d, want 1105", v.Long())
		}

		if len(bsmArgs) != 4 {
			t.Fatalf("bootstrap got %d arguments, want 4", len(bsmArgs))
		}
		if l, ok := bsmArgs[0].Ref().(*testLookup); !ok || l.caller.Name != "Test" {
			t.Errorf("argument 0: want lookup of Test, got %s", bsmArgs[0])
		}
		if bsmArgs[1].Ref() != "sum" {
			t.Errorf("argument 1: want name sum, got %s", bsmArgs[1])
		}
		if bsmArgs[2].Ref() != testMethodType("(IJ)J") {
			t.Errorf("argument 2: want method type (IJ)J, got %s", bsmArgs[2])
		}

		if len(callArgs) != 2 || callArgs[0].Kind() != KindInt || callArgs[1].Kind() != KindLong {
			t.Errorf("call arguments not in declared order and whole form: %v", callArgs)
		}
	})

	t.Run("relinked on every execution", func(t *testing.T) {
		h := newHost()
		var links atomic.Int32
		bootstrap(h, &links, nil, func(static int32, a []Value) (Value, error) {
			return IntValue(a[0].Int() + static), nil
		})
		v, err := runIn(t, h, DefaultOptions(), "()I", func(b *classfile.Builder) []byte {
			idx := callSite(b, 1, "inc", "(I)I")
			// Byte 0-3: sum = 0, i = 0
			// Byte 4: iload_1, iconst_2, if_icmpge +16 -> 22
			// Byte 9: iload_0, invokedynamic, istore_0
			// Byte 16: iinc 1 1
			// Byte 19: goto -15 -> 4
			// Byte 22: iload_0, ireturn
			return bytecode(
				[]byte{0x03, 0x3B, 0x03, 0x3C},
				[]byte{0x1B, 0x05, 0xA2, 0x00, 0x10},
				[]byte{0x1A}, op16(0xBA, idx), []byte{0x00, 0x00, 0x3B},
				[]byte{0x84, 0x01, 0x01},
				[]byte{0xA7, 0xFF, 0xF1},
				[]byte{0x1A, 0xAC},
			)
		})
		if err != nil {
			t.Fatal(err)
		}
		if v.Int() != 2 {
			t.Errorf("got %d, want 2", v.Int())
		}
		if n := links.Load(); n != 2 {
			t.Errorf("bootstrap ran %d times, want 2", n)
		}
	})

	t.Run("void call site", func(t *testing.T) {
		h := newHost()
		var links, calls atomic.Int32
		bootstrap(h, &links, nil, func(int32, []Value) (Value, error) {
			calls.Add(1)
			return Value{}, nil
		})
		_, err := runIn(t, h, DefaultOptions(), "()V", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBA, callSite(b, 0, "run", "()V")), []byte{0x00, 0x00, 0xB1})
		})
		if err != nil || calls.Load() != 1 {
			t.Errorf("calls %d, err %v", calls.Load(), err)
		}
	})

	t.Run("target failure is catchable", func(t *testing.T) {
		h := newHost()
		var links atomic.Int32
		bootstrap(h, &links, nil, func(int32, []Value) (Value, error) {
			return Value{}, errors.New("target exploded")
		})
		_, err := runIn(t, h, DefaultOptions(), "()V", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBA, callSite(b, 0, "run", "()V")), []byte{0x00, 0x00, 0xB1})
		})
		f := expectFault(t, err, "java/lang/RuntimeException")
		if f.Cause == nil || f.Cause.Error() != "target exploded" {
			t.Errorf("cause: got %v", f.Cause)
		}
	})

	t.Run("not a call site constant", func(t *testing.T) {
		_, err := runBuilt(t, "()V", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBA, b.Integer(3)), []byte{0x00, 0x00, 0xB1})
		})
		if !errors.Is(err, ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})
}

func TestLdcMethodHandleAndType(t *testing.T) {
	h := newHost()
	var links atomic.Int32
	bootstrap(h, &links, nil, nil)

	v, err := runIn(t, h, DefaultOptions(), "()Ljava/lang/Object;", func(b *classfile.Builder) []byte {
		return bytecode(op16(0x13, b.MethodType("(I)V")), []byte{0xB0})
	})
	if err != nil || v.Ref() != testMethodType("(I)V") {
		t.Errorf("method type: got %s, %v", v, err)
	}

	h = newHost()
	bootstrap(h, &links, nil, nil)
	v, err = runIn(t, h, DefaultOptions(), "()Ljava/lang/Object;", func(b *classfile.Builder) []byte {
		handle := b.MethodHandle(classfile.RefInvokeStatic, b.Methodref("Boot", "bsm", bsmDesc))
		return bytecode(op16(0x13, handle), []byte{0xB0})
	})
	if err != nil {
		t.Fatal(err)
	}
	mh, ok := v.Ref().(*testHandle)
	if !ok || mh.name != "Boot.bsm"+bsmDesc {
		t.Errorf("method handle: got %s", v)
	}
}
