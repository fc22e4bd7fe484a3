package native

import (
	"cmp"
	"fmt"
	"strconv"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// Integer represents a java.lang.Integer.
type Integer struct {
	Value int32
}

func (i *Integer) String() string  { return strconv.Itoa(int(i.Value)) }
func (i *Integer) HashCode() int32 { return i.Value }

// Boxes of -128..127 are shared, as Integer.valueOf guarantees.
var integerCache = func() [256]*Integer {
	var c [256]*Integer
	for i := range c {
		c[i] = &Integer{Value: int32(i - 128)}
	}
	return c
}()

// IntegerValueOf boxes v.
func IntegerValueOf(v int32) *Integer {
	if v >= -128 && v <= 127 {
		return integerCache[v+128]
	}
	return &Integer{Value: v}
}

// ParseInt parses a decimal int the way Integer.parseInt does.
func ParseInt(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, vm.NewFault("java/lang/NumberFormatException", fmt.Sprintf("For input string: %q", s))
	}
	return int32(n), nil
}

// RegisterInteger registers java/lang/Integer.
func RegisterInteger(r *Registry) {
	const owner = "java/lang/Integer"
	boxed := func(fn func(i *Integer, args []vm.Value) (vm.Value, error)) Func {
		return func(recv vm.Value, args []vm.Value) (vm.Value, error) {
			i, err := receiver[*Integer](recv)
			if err != nil {
				return vm.Value{}, err
			}
			return fn(i, args)
		}
	}

	r.RegisterStatic(owner, "valueOf", "(I)Ljava/lang/Integer;", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(IntegerValueOf(args[0].Int())), nil
	})
	r.RegisterStatic(owner, "parseInt", "(Ljava/lang/String;)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		s, ok := args[0].Ref().(string)
		if !ok {
			return vm.Value{}, vm.NewFault("java/lang/NumberFormatException", "Cannot parse null string: null")
		}
		n, err := ParseInt(s)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(n), nil
	})
	r.RegisterStatic(owner, "toString", "(I)Ljava/lang/String;", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(strconv.Itoa(int(args[0].Int()))), nil
	})
	r.RegisterStatic(owner, "compare", "(II)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(int32(cmp.Compare(args[0].Int(), args[1].Int()))), nil
	})
	r.RegisterStatic(owner, "sum", "(II)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(args[0].Int() + args[1].Int()), nil
	})
	r.RegisterStatic(owner, "max", "(II)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(max(args[0].Int(), args[1].Int())), nil
	})
	r.RegisterStatic(owner, "min", "(II)I", func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(min(args[0].Int(), args[1].Int())), nil
	})

	r.Register(owner, "intValue", "()I", boxed(func(i *Integer, _ []vm.Value) (vm.Value, error) {
		return vm.IntValue(i.Value), nil
	}))
	r.Register(owner, "longValue", "()J", boxed(func(i *Integer, _ []vm.Value) (vm.Value, error) {
		return vm.LongValue(int64(i.Value)), nil
	}))
	r.Register(owner, "hashCode", "()I", boxed(func(i *Integer, _ []vm.Value) (vm.Value, error) {
		return vm.IntValue(i.Value), nil
	}))
	r.Register(owner, "toString", "()Ljava/lang/String;", boxed(func(i *Integer, _ []vm.Value) (vm.Value, error) {
		return vm.RefValue(i.String()), nil
	}))
	r.Register(owner, "equals", "(Ljava/lang/Object;)Z", func(recv vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(Equals(recv, args[0])), nil
	})
	r.Register(owner, "compareTo", "(Ljava/lang/Integer;)I", boxed(func(i *Integer, args []vm.Value) (vm.Value, error) {
		other, ok := args[0].Ref().(*Integer)
		if !ok {
			return vm.Value{}, vm.NewFault("java/lang/NullPointerException", "compareTo null")
		}
		return vm.IntValue(int32(cmp.Compare(i.Value, other.Value))), nil
	}))
}
