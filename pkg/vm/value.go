package vm

import (
	"fmt"
	"math"
	"reflect"
)

// Kind tags a Value.
type Kind uint8

const (
	// KindUnset marks a local variable slot that was never written.
	KindUnset Kind = iota
	KindNull
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindFloat
	// KindLong and KindDouble are whole 64-bit values. They only appear at
	// boundaries: call arguments, return values, fields and array elements.
	KindLong
	KindDouble
	// KindChunk is one 4-byte half of a long or double on the stack or in locals.
	KindChunk
	KindRef
	KindPlaceholder
	KindArray
	KindReturnAddress
)

var kindNames = [...]string{
	KindUnset:         "unset",
	KindNull:          "null",
	KindBoolean:       "boolean",
	KindByte:          "byte",
	KindChar:          "char",
	KindShort:         "short",
	KindInt:           "int",
	KindFloat:         "float",
	KindLong:          "long",
	KindDouble:        "double",
	KindChunk:         "chunk",
	KindRef:           "ref",
	KindPlaceholder:   "placeholder",
	KindArray:         "array",
	KindReturnAddress: "returnAddress",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a runtime value on the operand stack, in a local variable slot,
// or crossing the host boundary.
type Value struct {
	kind Kind
	bits uint64
	ref  any
}

// Placeholder stands in for an object whose constructor has not run yet.
// Identity is the pointer.
type Placeholder struct {
	Class *Class
}

func (p *Placeholder) String() string {
	return fmt.Sprintf("placeholder(%s)@%p", p.Class.Name, p)
}

func NullValue() Value { return Value{kind: KindNull} }

func BoolValue(b bool) Value {
	if b {
		return Value{kind: KindBoolean, bits: 1}
	}
	return Value{kind: KindBoolean}
}

func ByteValue(v int8) Value   { return Value{kind: KindByte, bits: uint64(uint32(int32(v)))} }
func CharValue(v uint16) Value { return Value{kind: KindChar, bits: uint64(v)} }
func ShortValue(v int16) Value { return Value{kind: KindShort, bits: uint64(uint32(int32(v)))} }
func IntValue(v int32) Value   { return Value{kind: KindInt, bits: uint64(uint32(v))} }
func FloatValue(v float32) Value {
	return Value{kind: KindFloat, bits: uint64(math.Float32bits(v))}
}
func LongValue(v int64) Value { return Value{kind: KindLong, bits: uint64(v)} }
func DoubleValue(v float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(v)}
}

// RefValue wraps a host object. A nil ref yields null.
func RefValue(ref any) Value {
	if ref == nil {
		return NullValue()
	}
	return Value{kind: KindRef, ref: ref}
}

func ArrayValue(a *Array) Value {
	if a == nil {
		return NullValue()
	}
	return Value{kind: KindArray, ref: a}
}

func PlaceholderValue(p *Placeholder) Value { return Value{kind: KindPlaceholder, ref: p} }

func chunkValue(bits uint32) Value { return Value{kind: KindChunk, bits: uint64(bits)} }

func returnAddressValue(pc int) Value { return Value{kind: KindReturnAddress, bits: uint64(pc)} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsReference reports whether v may be stored in a reference slot.
func (v Value) IsReference() bool {
	switch v.kind {
	case KindNull, KindRef, KindPlaceholder, KindArray:
		return true
	}
	return false
}

// IsWide reports whether v is a whole long or double.
func (v Value) IsWide() bool { return v.kind == KindLong || v.kind == KindDouble }

// Int returns the 32-bit payload. Callers that accept sub-int kinds should
// use EffectiveInt.
func (v Value) Int() int32 { return int32(uint32(v.bits)) }

func (v Value) Bool() bool { return v.bits != 0 }

func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }

func (v Value) Long() int64 { return int64(v.bits) }

func (v Value) Double() float64 { return math.Float64frombits(v.bits) }

// Ref returns the host object, the *Array or the *Placeholder behind v.
func (v Value) Ref() any { return v.ref }

func (v Value) Array() (*Array, bool) {
	a, ok := v.ref.(*Array)
	return a, ok && v.kind == KindArray
}

func (v Value) Placeholder() (*Placeholder, bool) {
	p, ok := v.ref.(*Placeholder)
	return p, ok && v.kind == KindPlaceholder
}

// EffectiveInt widens boolean, byte, char and short to int.
func (v Value) EffectiveInt() (int32, bool) {
	switch v.kind {
	case KindBoolean, KindByte, KindChar, KindShort, KindInt:
		return int32(uint32(v.bits)), true
	}
	return 0, false
}

// Same reports reference identity as if_acmpeq sees it.
func (v Value) Same(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == o.kind
	}
	if !v.IsReference() || !o.IsReference() {
		return false
	}
	return v.ref == o.ref
}

// split breaks a wide value into its low and high chunks.
func (v Value) split() (lo, hi Value) {
	return chunkValue(uint32(v.bits)), chunkValue(uint32(v.bits >> 32))
}

func joinBits(lo, hi Value) uint64 {
	return uint64(uint32(hi.bits))<<32 | uint64(uint32(lo.bits))
}

func (v Value) String() string {
	switch v.kind {
	case KindUnset:
		return "<unset>"
	case KindNull:
		return "null"
	case KindBoolean:
		return fmt.Sprintf("%t", v.bits != 0)
	case KindByte, KindShort, KindInt:
		return fmt.Sprintf("%s(%d)", v.kind, v.Int())
	case KindChar:
		return fmt.Sprintf("char(%q)", rune(uint16(v.bits)))
	case KindFloat:
		return fmt.Sprintf("float(%g)", v.Float())
	case KindLong:
		return fmt.Sprintf("long(%d)", v.Long())
	case KindDouble:
		return fmt.Sprintf("double(%g)", v.Double())
	case KindChunk:
		return fmt.Sprintf("chunk(%08x)", uint32(v.bits))
	case KindReturnAddress:
		return fmt.Sprintf("returnAddress(%d)", v.bits)
	case KindArray:
		a := v.ref.(*Array)
		return fmt.Sprintf("%s[%d]", a.Elem, a.Len())
	case KindPlaceholder:
		return v.ref.(*Placeholder).String()
	default:
		return refString(v.ref)
	}
}

// refString renders a reference by type and identity. It never calls
// methods of the referenced object, which may run bytecode.
func refString(ref any) string {
	if s, ok := ref.(string); ok {
		return fmt.Sprintf("ref(%q)", s)
	}
	rv := reflect.ValueOf(ref)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("ref(%T@%#x)", ref, rv.Pointer())
	}
	return fmt.Sprintf("ref(%T)", ref)
}
