package native

import (
	"slices"
	"unicode/utf16"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// StringBuilder represents a java.lang.StringBuilder. Content is held in
// UTF-16 units so length and reverse match Java.
type StringBuilder struct {
	units []uint16
}

func (sb *StringBuilder) Append(s string) *StringBuilder {
	sb.units = append(sb.units, utf16Of(s)...)
	return sb
}

func (sb *StringBuilder) Len() int { return len(sb.units) }

func (sb *StringBuilder) String() string { return string(utf16.Decode(sb.units)) }

// Reverse reverses the content, keeping surrogate pairs in order.
func (sb *StringBuilder) Reverse() *StringBuilder {
	r := []rune(sb.String())
	slices.Reverse(r)
	sb.units = utf16.Encode(r)
	return sb
}

// RegisterStringBuilder registers java/lang/StringBuilder.
func RegisterStringBuilder(r *Registry) {
	const (
		owner = "java/lang/StringBuilder"
		self  = "Ljava/lang/StringBuilder;"
	)
	builder := func(fn func(sb *StringBuilder, args []vm.Value) vm.Value) Func {
		return func(recv vm.Value, args []vm.Value) (vm.Value, error) {
			sb, err := receiver[*StringBuilder](recv)
			if err != nil {
				return vm.Value{}, err
			}
			return fn(sb, args), nil
		}
	}

	r.Register(owner, "<init>", "()V", builder(func(*StringBuilder, []vm.Value) vm.Value { return vm.Value{} }))
	r.Register(owner, "<init>", "(I)V", builder(func(*StringBuilder, []vm.Value) vm.Value { return vm.Value{} }))
	r.Register(owner, "<init>", "(Ljava/lang/String;)V", builder(func(sb *StringBuilder, args []vm.Value) vm.Value {
		sb.Append(Format(args[0]))
		return vm.Value{}
	}))

	appendFn := builder(func(sb *StringBuilder, args []vm.Value) vm.Value {
		return vm.RefValue(sb.Append(printed(args[0])))
	})
	for _, t := range []string{"Ljava/lang/String;", "Ljava/lang/Object;", "Ljava/lang/CharSequence;", "I", "J", "C", "Z", "F", "D", "[C"} {
		r.Register(owner, "append", "("+t+")"+self, appendFn)
	}
	r.Register(owner, "reverse", "()"+self, builder(func(sb *StringBuilder, _ []vm.Value) vm.Value {
		return vm.RefValue(sb.Reverse())
	}))
	r.Register(owner, "length", "()I", builder(func(sb *StringBuilder, _ []vm.Value) vm.Value {
		return vm.IntValue(int32(sb.Len()))
	}))
	r.Register(owner, "toString", "()Ljava/lang/String;", builder(func(sb *StringBuilder, _ []vm.Value) vm.Value {
		return vm.RefValue(sb.String())
	}))
}
