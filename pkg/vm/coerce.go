package vm

import (
	"fmt"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// Coerce converts v to the declared type t, narrowing int-like values.
// A boolean must be 0 or 1; anything else is an IllegalArgumentException
// fault. Kind mismatches are fatal.
func Coerce(v Value, t classfile.FieldType) (Value, error) {
	return coerce(v, t, true)
}

// narrow is Coerce with JVM masking for booleans, used for values produced
// by interpreted code.
func narrow(v Value, t classfile.FieldType) (Value, error) {
	return coerce(v, t, false)
}

func coerce(v Value, t classfile.FieldType, strictBool bool) (Value, error) {
	if t.IsReference() {
		if !v.IsReference() {
			return Value{}, fatalf("expected reference for %s, got %s", t, v.Kind())
		}
		return v, nil
	}
	switch t {
	case "J":
		if v.Kind() != KindLong {
			return Value{}, fatalf("expected long, got %s", v.Kind())
		}
		return v, nil
	case "D":
		if v.Kind() != KindDouble {
			return Value{}, fatalf("expected double, got %s", v.Kind())
		}
		return v, nil
	case "F":
		if v.Kind() != KindFloat {
			return Value{}, fatalf("expected float, got %s", v.Kind())
		}
		return v, nil
	}

	x, ok := v.EffectiveInt()
	if !ok {
		return Value{}, fatalf("expected %s, got %s", t, v.Kind())
	}
	switch t {
	case "Z":
		if v.Kind() == KindBoolean {
			return v, nil
		}
		if strictBool && x != 0 && x != 1 {
			f := NewFault("java/lang/IllegalArgumentException", fmt.Sprintf("invalid boolean value %d", x))
			return Value{}, f
		}
		return BoolValue(x&1 != 0), nil
	case "B":
		return ByteValue(int8(x)), nil
	case "C":
		return CharValue(uint16(x)), nil
	case "S":
		return ShortValue(int16(x)), nil
	case "I":
		return IntValue(x), nil
	}
	return Value{}, fatalf("unknown field type %q", t)
}
