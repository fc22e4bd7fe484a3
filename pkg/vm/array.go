package vm

import (
	"fmt"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// ElemKind is an array element kind. Primitive kinds use the newarray atype codes.
type ElemKind uint8

const (
	ElemRef     ElemKind = 0
	ElemBoolean ElemKind = 4
	ElemChar    ElemKind = 5
	ElemFloat   ElemKind = 6
	ElemDouble  ElemKind = 7
	ElemByte    ElemKind = 8
	ElemShort   ElemKind = 9
	ElemInt     ElemKind = 10
	ElemLong    ElemKind = 11
)

func (k ElemKind) String() string {
	switch k {
	case ElemRef:
		return "ref"
	case ElemBoolean:
		return "boolean"
	case ElemChar:
		return "char"
	case ElemFloat:
		return "float"
	case ElemDouble:
		return "double"
	case ElemByte:
		return "byte"
	case ElemShort:
		return "short"
	case ElemInt:
		return "int"
	case ElemLong:
		return "long"
	}
	return fmt.Sprintf("atype(%d)", uint8(k))
}

// Descriptor returns the component descriptor of a primitive kind.
func (k ElemKind) Descriptor() string {
	switch k {
	case ElemBoolean:
		return "Z"
	case ElemChar:
		return "C"
	case ElemFloat:
		return "F"
	case ElemDouble:
		return "D"
	case ElemByte:
		return "B"
	case ElemShort:
		return "S"
	case ElemInt:
		return "I"
	case ElemLong:
		return "J"
	}
	return ""
}

// ElemKindOf maps a component descriptor to its element kind.
func ElemKindOf(component classfile.FieldType) ElemKind {
	switch component {
	case "Z":
		return ElemBoolean
	case "C":
		return ElemChar
	case "F":
		return ElemFloat
	case "D":
		return ElemDouble
	case "B":
		return ElemByte
	case "S":
		return ElemShort
	case "I":
		return ElemInt
	case "J":
		return ElemLong
	}
	return ElemRef
}

// Array is a one-dimensional array. Multi-dimensional arrays are reference
// arrays whose elements are arrays.
type Array struct {
	Elem  ElemKind
	Class *Class
	// Component is the element class of a reference array; aastore checks
	// stored values against it. Nil skips the check.
	Component *Class

	bytes   []int8 // boolean and byte
	chars   []uint16
	shorts  []int16
	ints    []int32
	longs   []int64
	floats  []float32
	doubles []float64
	refs    []Value
}

// NewArray allocates a zero-filled array. Reference arrays are null-filled.
func NewArray(elem ElemKind, class *Class, n int) *Array {
	a := &Array{Elem: elem, Class: class}
	switch elem {
	case ElemBoolean, ElemByte:
		a.bytes = make([]int8, n)
	case ElemChar:
		a.chars = make([]uint16, n)
	case ElemShort:
		a.shorts = make([]int16, n)
	case ElemInt:
		a.ints = make([]int32, n)
	case ElemLong:
		a.longs = make([]int64, n)
	case ElemFloat:
		a.floats = make([]float32, n)
	case ElemDouble:
		a.doubles = make([]float64, n)
	default:
		a.refs = make([]Value, n)
		for i := range a.refs {
			a.refs[i] = NullValue()
		}
	}
	return a
}

func (a *Array) Len() int {
	switch a.Elem {
	case ElemBoolean, ElemByte:
		return len(a.bytes)
	case ElemChar:
		return len(a.chars)
	case ElemShort:
		return len(a.shorts)
	case ElemInt:
		return len(a.ints)
	case ElemLong:
		return len(a.longs)
	case ElemFloat:
		return len(a.floats)
	case ElemDouble:
		return len(a.doubles)
	}
	return len(a.refs)
}

// Load returns element i. Long and double elements come back whole.
func (a *Array) Load(i int) Value {
	switch a.Elem {
	case ElemBoolean:
		return BoolValue(a.bytes[i] != 0)
	case ElemByte:
		return ByteValue(a.bytes[i])
	case ElemChar:
		return CharValue(a.chars[i])
	case ElemShort:
		return ShortValue(a.shorts[i])
	case ElemInt:
		return IntValue(a.ints[i])
	case ElemLong:
		return LongValue(a.longs[i])
	case ElemFloat:
		return FloatValue(a.floats[i])
	case ElemDouble:
		return DoubleValue(a.doubles[i])
	}
	return a.refs[i]
}

// Store narrows v to the element width and stores it at i.
func (a *Array) Store(i int, v Value) error {
	switch a.Elem {
	case ElemBoolean, ElemByte, ElemChar, ElemShort, ElemInt:
		x, ok := v.EffectiveInt()
		if !ok {
			return fmt.Errorf("cannot store %s into %s array", v.Kind(), a.Elem)
		}
		switch a.Elem {
		case ElemBoolean:
			a.bytes[i] = int8(x & 1)
		case ElemByte:
			a.bytes[i] = int8(x)
		case ElemChar:
			a.chars[i] = uint16(x)
		case ElemShort:
			a.shorts[i] = int16(x)
		default:
			a.ints[i] = x
		}
	case ElemLong:
		if v.Kind() != KindLong {
			return fmt.Errorf("cannot store %s into long array", v.Kind())
		}
		a.longs[i] = v.Long()
	case ElemFloat:
		if v.Kind() != KindFloat {
			return fmt.Errorf("cannot store %s into float array", v.Kind())
		}
		a.floats[i] = v.Float()
	case ElemDouble:
		if v.Kind() != KindDouble {
			return fmt.Errorf("cannot store %s into double array", v.Kind())
		}
		a.doubles[i] = v.Double()
	default:
		if !v.IsReference() {
			return fmt.Errorf("cannot store %s into reference array", v.Kind())
		}
		a.refs[i] = v
	}
	return nil
}

// InBounds reports whether i is a valid index.
func (a *Array) InBounds(i int32) bool { return i >= 0 && int(i) < a.Len() }

// Ints exposes the backing slice of an int array.
func (a *Array) Ints() []int32 { return a.ints }

// Chars exposes the backing slice of a char array.
func (a *Array) Chars() []uint16 { return a.chars }

// Bytes exposes the backing slice of a byte or boolean array.
func (a *Array) Bytes() []int8 { return a.bytes }

// Refs exposes the backing slice of a reference array.
func (a *Array) Refs() []Value { return a.refs }
