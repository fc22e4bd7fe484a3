package host

import (
	"fmt"
	"strings"
	"time"

	"github.com/daimatz/jvmengine/pkg/native"
	"github.com/daimatz/jvmengine/pkg/vm"
)

var start = time.Now()

// registerNatives adds the methods that need the object model itself.
func (u *Universe) registerNatives(r *native.Registry) {
	registerConcat(r)

	r.Register(objectClass, "getClass", "()Ljava/lang/Class;", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		c, err := u.ClassOf(recv)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefValue(c), nil
	})
	className := func(recv vm.Value) (string, error) {
		c, ok := recv.Ref().(*vm.Class)
		if !ok {
			return "", fmt.Errorf("receiver %s is not a class", recv)
		}
		return strings.ReplaceAll(c.Name, "/", "."), nil
	}
	r.Register("java/lang/Class", "getName", "()Ljava/lang/String;", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		name, err := className(recv)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefValue(name), nil
	})
	r.Register("java/lang/Class", "getSimpleName", "()Ljava/lang/String;", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		name, err := className(recv)
		if err != nil {
			return vm.Value{}, err
		}
		name = name[strings.LastIndexAny(name, ".$")+1:]
		return vm.RefValue(name), nil
	})
	r.Register("java/lang/Class", "desiredAssertionStatus", "()Z", func(vm.Value, []vm.Value) (vm.Value, error) {
		return vm.BoolValue(false), nil
	})

	u.registerThrowable(r)
	u.registerSystem(r)
}

func (u *Universe) registerThrowable(r *native.Registry) {
	throwableObject := func(recv vm.Value) (*Object, error) {
		o, ok := recv.Ref().(*Object)
		if !ok || !u.isThrowable(o.class) {
			return nil, fmt.Errorf("receiver %s is not a throwable", recv)
		}
		return o, nil
	}
	setMessage := func(recv vm.Value, msg vm.Value) error {
		o, err := throwableObject(recv)
		if err != nil {
			return err
		}
		if f := u.messageField(); f != nil {
			o.set(f, msg)
		}
		return nil
	}
	getMessage := func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := throwableObject(recv)
		if err != nil {
			return vm.Value{}, err
		}
		if msg, ok := o.message(); ok {
			return vm.RefValue(msg), nil
		}
		return vm.NullValue(), nil
	}

	r.Register(throwableClass, "<init>", "()V", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		_, err := throwableObject(recv)
		return vm.Value{}, err
	})
	r.Register(throwableClass, "<init>", "(Ljava/lang/String;)V", func(recv vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Value{}, setMessage(recv, args[0])
	})
	r.Register(throwableClass, "getMessage", "()Ljava/lang/String;", getMessage)
	r.Register(throwableClass, "getLocalizedMessage", "()Ljava/lang/String;", getMessage)
	r.Register(throwableClass, "toString", "()Ljava/lang/String;", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		o, err := throwableObject(recv)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefValue(o.defaultString()), nil
	})
	r.Register(throwableClass, "printStackTrace", "()V", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		native.NewPrintStream(u.stderr).Println(native.Format(recv))
		return vm.Value{}, nil
	})
	// assert statements build the error from an arbitrary detail object.
	r.Register("java/lang/AssertionError", "<init>", "(Ljava/lang/Object;)V", func(recv vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Value{}, setMessage(recv, vm.RefValue(native.Format(args[0])))
	})
}

func (u *Universe) registerSystem(r *native.Registry) {
	const owner = "java/lang/System"
	r.RegisterStatic(owner, "currentTimeMillis", "()J", func(vm.Value, []vm.Value) (vm.Value, error) {
		return vm.LongValue(time.Now().UnixMilli()), nil
	})
	r.RegisterStatic(owner, "nanoTime", "()J", func(vm.Value, []vm.Value) (vm.Value, error) {
		return vm.LongValue(int64(time.Since(start))), nil
	})
	r.RegisterStatic(owner, "identityHashCode", "(Ljava/lang/Object;)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		if args[0].IsNull() {
			return vm.IntValue(0), nil
		}
		return vm.IntValue(native.IdentityHash(args[0].Ref())), nil
	})
	r.RegisterStatic(owner, "lineSeparator", "()Ljava/lang/String;", func(vm.Value, []vm.Value) (vm.Value, error) {
		return vm.RefValue("\n"), nil
	})
	r.RegisterStatic(owner, "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Value{}, arraycopy(args[0], int(args[1].Int()), args[2], int(args[3].Int()), int(args[4].Int()))
	})
}

func arraycopy(srcV vm.Value, sp int, dstV vm.Value, dp int, n int) error {
	if srcV.IsNull() || dstV.IsNull() {
		return vm.NewFault("java/lang/NullPointerException", "arraycopy of null")
	}
	src, ok1 := srcV.Array()
	dst, ok2 := dstV.Array()
	if !ok1 || !ok2 {
		return vm.NewFault("java/lang/ArrayStoreException", "arraycopy: argument is not an array")
	}
	if src.Elem != dst.Elem {
		return vm.NewFault("java/lang/ArrayStoreException",
			fmt.Sprintf("arraycopy: type mismatch: can not copy %s[] into %s[]", src.Elem, dst.Elem))
	}
	if sp < 0 || dp < 0 || n < 0 || sp+n > src.Len() || dp+n > dst.Len() {
		return vm.NewFault("java/lang/ArrayIndexOutOfBoundsException",
			fmt.Sprintf("arraycopy: range [%d, %d) -> [%d, %d) out of bounds for lengths %d and %d", sp, sp+n, dp, dp+n, src.Len(), dst.Len()))
	}
	vals := make([]vm.Value, n)
	for i := range vals {
		vals[i] = src.Load(sp + i)
	}
	for i, v := range vals {
		if err := dst.Store(dp+i, v); err != nil {
			return vm.NewFault("java/lang/ArrayStoreException", err.Error())
		}
	}
	return nil
}
