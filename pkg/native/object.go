package native

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// Hasher is implemented by objects with a Java hashCode.
type Hasher interface {
	HashCode() int32
}

var identities struct {
	sync.Mutex
	next int32
	ids  map[any]int32
}

// IdentityHash returns a stable hash for a reference, assigned on first use.
func IdentityHash(ref any) int32 {
	identities.Lock()
	defer identities.Unlock()
	if identities.ids == nil {
		identities.ids = make(map[any]int32)
	}
	if id, ok := identities.ids[ref]; ok {
		return id
	}
	identities.next++
	// Spread sequential ids so printed hashes look like the JVM's.
	id := int32(uint32(identities.next) * 0x9E3779B1 >> 1)
	identities.ids[ref] = id
	return id
}

// HashCode computes hashCode() of a reference value.
func HashCode(v vm.Value) int32 {
	if v.IsNull() {
		return 0
	}
	switch r := v.Ref().(type) {
	case string:
		return StringHash(r)
	case Hasher:
		return r.HashCode()
	}
	return IdentityHash(v.Ref())
}

// Equals implements Object.equals for the Go-backed classes; everything
// else compares by identity.
func Equals(a, b vm.Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	switch x := a.Ref().(type) {
	case string:
		y, ok := b.Ref().(string)
		return ok && x == y
	case *Integer:
		y, ok := b.Ref().(*Integer)
		return ok && x.Value == y.Value
	}
	return a.Same(b)
}

// Format renders v the way String.valueOf does.
func Format(v vm.Value) string {
	switch v.Kind() {
	case vm.KindNull:
		return "null"
	case vm.KindBoolean:
		return strconv.FormatBool(v.Bool())
	case vm.KindChar:
		return string(rune(v.Int()))
	case vm.KindByte, vm.KindShort, vm.KindInt:
		return strconv.Itoa(int(v.Int()))
	case vm.KindLong:
		return strconv.FormatInt(v.Long(), 10)
	case vm.KindFloat:
		return formatFloat(float64(v.Float()), 32)
	case vm.KindDouble:
		return formatFloat(v.Double(), 64)
	}
	if a, ok := v.Array(); ok {
		name := "?"
		if a.Class != nil {
			name = a.Class.Name
		}
		return fmt.Sprintf("%s@%x", name, uint32(IdentityHash(a)))
	}
	switch r := v.Ref().(type) {
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	}
	return fmt.Sprintf("%v@%x", v.Ref(), uint32(IdentityHash(v.Ref())))
}

// formatFloat follows Double.toString: plain notation in [1e-3, 1e7),
// otherwise computerized scientific notation, always with a fraction.
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	if abs := math.Abs(f); abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(f, 'E', -1, bits)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	neg := strings.HasPrefix(exp, "-")
	exp = strings.TrimLeft(exp, "+-0")
	if neg {
		exp = "-" + exp
	}
	return mant + "E" + exp
}

// RegisterObject registers java/lang/Object.
func RegisterObject(r *Registry) {
	const owner = "java/lang/Object"
	r.Register(owner, "<init>", "()V", func(vm.Value, []vm.Value) (vm.Value, error) {
		return vm.Value{}, nil
	})
	r.Register(owner, "hashCode", "()I", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		return vm.IntValue(HashCode(recv)), nil
	})
	r.Register(owner, "equals", "(Ljava/lang/Object;)Z", func(recv vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(Equals(recv, args[0])), nil
	})
	r.Register(owner, "toString", "()Ljava/lang/String;", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		return vm.RefValue(Format(recv)), nil
	})
}
