package native

import (
	"math"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// RegisterMath registers the static helpers of java/lang/Math.
func RegisterMath(r *Registry) {
	const owner = "java/lang/Math"
	ints := func(fn func(a, b int32) int32) Func {
		return func(_ vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.IntValue(fn(args[0].Int(), args[1].Int())), nil
		}
	}
	longs := func(fn func(a, b int64) int64) Func {
		return func(_ vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.LongValue(fn(args[0].Long(), args[1].Long())), nil
		}
	}
	doubles := func(fn func(a float64) float64) Func {
		return func(_ vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.DoubleValue(fn(args[0].Double())), nil
		}
	}

	r.RegisterStatic(owner, "max", "(II)I", ints(func(a, b int32) int32 { return max(a, b) }))
	r.RegisterStatic(owner, "min", "(II)I", ints(func(a, b int32) int32 { return min(a, b) }))
	r.RegisterStatic(owner, "max", "(JJ)J", longs(func(a, b int64) int64 { return max(a, b) }))
	r.RegisterStatic(owner, "min", "(JJ)J", longs(func(a, b int64) int64 { return min(a, b) }))
	r.RegisterStatic(owner, "floorMod", "(II)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		a, b := args[0].Int(), args[1].Int()
		if b == 0 {
			return vm.Value{}, vm.NewFault("java/lang/ArithmeticException", "/ by zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return vm.IntValue(m), nil
	})
	// abs of the minimum value overflows to itself, as in Java.
	r.RegisterStatic(owner, "abs", "(I)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		x := args[0].Int()
		if x < 0 {
			x = -x
		}
		return vm.IntValue(x), nil
	})
	r.RegisterStatic(owner, "abs", "(J)J", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		x := args[0].Long()
		if x < 0 {
			x = -x
		}
		return vm.LongValue(x), nil
	})
	r.RegisterStatic(owner, "abs", "(D)D", doubles(math.Abs))
	r.RegisterStatic(owner, "sqrt", "(D)D", doubles(math.Sqrt))
	r.RegisterStatic(owner, "pow", "(DD)D", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Pow(args[0].Double(), args[1].Double())), nil
	})
}
