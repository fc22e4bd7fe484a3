package native

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// Strings are Go strings. Indices and lengths are counted in UTF-16 units.

func utf16Of(s string) []uint16 { return utf16.Encode([]rune(s)) }

// StringHash computes String.hashCode: s[0]*31^(n-1) + ... + s[n-1].
func StringHash(s string) int32 {
	var h int32
	for _, c := range utf16Of(s) {
		h = 31*h + int32(c)
	}
	return h
}

func indexOutOfBounds(class string, index, length int) *vm.Fault {
	return vm.NewFault(class, fmt.Sprintf("Index %d out of bounds for length %d", index, length))
}

// RegisterString registers java/lang/String.
func RegisterString(r *Registry) {
	const owner = "java/lang/String"
	str := func(fn func(s string, args []vm.Value) (vm.Value, error)) Func {
		return func(recv vm.Value, args []vm.Value) (vm.Value, error) {
			s, err := receiver[string](recv)
			if err != nil {
				return vm.Value{}, err
			}
			return fn(s, args)
		}
	}

	r.Register(owner, "length", "()I", str(func(s string, _ []vm.Value) (vm.Value, error) {
		return vm.IntValue(int32(len(utf16Of(s)))), nil
	}))
	r.Register(owner, "isEmpty", "()Z", str(func(s string, _ []vm.Value) (vm.Value, error) {
		return vm.BoolValue(s == ""), nil
	}))
	r.Register(owner, "charAt", "(I)C", str(func(s string, args []vm.Value) (vm.Value, error) {
		u := utf16Of(s)
		i := int(args[0].Int())
		if i < 0 || i >= len(u) {
			return vm.Value{}, indexOutOfBounds("java/lang/StringIndexOutOfBoundsException", i, len(u))
		}
		return vm.CharValue(u[i]), nil
	}))
	r.Register(owner, "substring", "(I)Ljava/lang/String;", str(func(s string, args []vm.Value) (vm.Value, error) {
		u := utf16Of(s)
		return substring(u, int(args[0].Int()), len(u))
	}))
	r.Register(owner, "substring", "(II)Ljava/lang/String;", str(func(s string, args []vm.Value) (vm.Value, error) {
		return substring(utf16Of(s), int(args[0].Int()), int(args[1].Int()))
	}))
	r.Register(owner, "indexOf", "(Ljava/lang/String;)I", str(func(s string, args []vm.Value) (vm.Value, error) {
		sub, ok := args[0].Ref().(string)
		if !ok {
			return vm.Value{}, vm.NewFault("java/lang/NullPointerException", "indexOf of null")
		}
		i := strings.Index(s, sub)
		if i < 0 {
			return vm.IntValue(-1), nil
		}
		return vm.IntValue(int32(len(utf16Of(s[:i])))), nil
	}))
	r.Register(owner, "concat", "(Ljava/lang/String;)Ljava/lang/String;", str(func(s string, args []vm.Value) (vm.Value, error) {
		other, ok := args[0].Ref().(string)
		if !ok {
			return vm.Value{}, vm.NewFault("java/lang/NullPointerException", "concat of null")
		}
		return vm.RefValue(s + other), nil
	}))
	r.Register(owner, "equals", "(Ljava/lang/Object;)Z", func(recv vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(Equals(recv, args[0])), nil
	})
	r.Register(owner, "hashCode", "()I", str(func(s string, _ []vm.Value) (vm.Value, error) {
		return vm.IntValue(StringHash(s)), nil
	}))
	r.Register(owner, "toString", "()Ljava/lang/String;", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		return recv, nil
	})

	valueOf := func(_ vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(Format(args[0])), nil
	}
	for _, t := range []string{"I", "J", "C", "Z", "F", "D", "Ljava/lang/Object;"} {
		r.RegisterStatic(owner, "valueOf", "("+t+")Ljava/lang/String;", valueOf)
	}
}

func substring(u []uint16, begin, end int) (vm.Value, error) {
	if begin < 0 || end > len(u) || begin > end {
		return vm.Value{}, vm.NewFault("java/lang/StringIndexOutOfBoundsException",
			fmt.Sprintf("begin %d, end %d, length %d", begin, end, len(u)))
	}
	return vm.RefValue(string(utf16.Decode(u[begin:end]))), nil
}
