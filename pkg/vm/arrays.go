package vm

import (
	"fmt"
	"strings"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// elemKinds maps each array load/store opcode to the element kinds it accepts.
var elemKinds = map[Opcode][]ElemKind{
	OpIaload: {ElemInt}, OpIastore: {ElemInt},
	OpLaload: {ElemLong}, OpLastore: {ElemLong},
	OpFaload: {ElemFloat}, OpFastore: {ElemFloat},
	OpDaload: {ElemDouble}, OpDastore: {ElemDouble},
	OpAaload: {ElemRef}, OpAastore: {ElemRef},
	OpBaload: {ElemByte, ElemBoolean}, OpBastore: {ElemByte, ElemBoolean},
	OpCaload: {ElemChar}, OpCastore: {ElemChar},
	OpSaload: {ElemShort}, OpSastore: {ElemShort},
}

// array unwraps an array reference, raising NullPointerException for null.
func (e *Executor) array(v Value) (*Array, error) {
	if v.IsNull() {
		return nil, throw("java/lang/NullPointerException", "%s on null array", e.op)
	}
	a, ok := v.Array()
	if !ok {
		return nil, fmt.Errorf("%s: %s is not an array", e.op, v.Kind())
	}
	return a, nil
}

func (e *Executor) element(arr Value, index int32, op Opcode) (*Array, error) {
	a, err := e.array(arr)
	if err != nil {
		return nil, err
	}
	accepted := false
	for _, k := range elemKinds[op] {
		accepted = accepted || a.Elem == k
	}
	if !accepted {
		return nil, fmt.Errorf("%s on %s array", op, a.Elem)
	}
	if !a.InBounds(index) {
		return nil, throw("java/lang/ArrayIndexOutOfBoundsException",
			"Index %d out of bounds for length %d", index, a.Len())
	}
	return a, nil
}

func (e *Executor) arrayLoad(op Opcode) error {
	index := e.popInt()
	a, err := e.element(e.popRef(), index, op)
	if err != nil {
		return err
	}
	e.frame.PushValue(a.Load(int(index)))
	return nil
}

func (e *Executor) arrayStore(op Opcode) error {
	var v Value
	switch op {
	case OpLastore:
		v = e.frame.PopTyped("J")
	case OpDastore:
		v = e.frame.PopTyped("D")
	default:
		v = e.frame.Pop()
	}
	index := e.popInt()
	a, err := e.element(e.popRef(), index, op)
	if err != nil {
		return err
	}
	if op == OpAastore && !v.IsNull() && a.Component != nil {
		if _, ok := v.Placeholder(); ok {
			return fmt.Errorf("aastore: storing an unconstructed %s", v)
		}
		ok, err := e.host.IsInstanceOf(v, a.Component)
		if err != nil {
			return hostError(err)
		}
		if !ok {
			return throw("java/lang/ArrayStoreException", "%s", e.className(v))
		}
	}
	return a.Store(int(index), v)
}

// arrayClass loads the array class whose components are described by component.
func (e *Executor) arrayClass(component string) (*Class, error) {
	c, err := e.host.LoadClass("[" + component)
	if err != nil {
		return nil, hostError(err)
	}
	return c, nil
}

func (e *Executor) newArray(kind ElemKind) error {
	desc := kind.Descriptor()
	if desc == "" {
		return fmt.Errorf("newarray: invalid atype %d", kind)
	}
	n := e.popInt()
	if n < 0 {
		return throw("java/lang/NegativeArraySizeException", "%d", n)
	}
	cls, err := e.arrayClass(desc)
	if err != nil {
		return err
	}
	e.frame.Push(ArrayValue(NewArray(kind, cls, int(n))))
	return nil
}

func (e *Executor) anewArray(index uint16) error {
	comp, err := e.resolver.ResolveClass(index)
	if err != nil {
		return err
	}
	n := e.popInt()
	if n < 0 {
		return throw("java/lang/NegativeArraySizeException", "%d", n)
	}
	cls, err := e.arrayClass(descriptorOf(comp))
	if err != nil {
		return err
	}
	a := NewArray(ElemRef, cls, int(n))
	a.Component = comp
	e.frame.Push(ArrayValue(a))
	return nil
}

func (e *Executor) multiANewArray(index uint16, dims int) error {
	cls, err := e.resolver.ResolveClass(index)
	if err != nil {
		return err
	}
	if dims < 1 || dims > strings.Count(cls.Name, "[") || !strings.HasPrefix(cls.Name, strings.Repeat("[", dims)) {
		return fmt.Errorf("multianewarray: %d dimensions for %s", dims, cls.Name)
	}
	// The outermost count is deepest on the stack.
	counts := make([]int32, dims)
	for i := dims - 1; i >= 0; i-- {
		counts[i] = e.popInt()
	}
	for _, n := range counts {
		if n < 0 {
			return throw("java/lang/NegativeArraySizeException", "%d", n)
		}
	}
	a, err := e.allocMulti(cls, counts)
	if err != nil {
		return err
	}
	e.frame.Push(ArrayValue(a))
	return nil
}

func (e *Executor) allocMulti(cls *Class, counts []int32) (*Array, error) {
	n := int(counts[0])
	component := classfile.FieldType(cls.Name[1:])
	if len(counts) == 1 && !component.IsReference() {
		return NewArray(ElemKindOf(component), cls, n), nil
	}

	compClass, err := e.host.LoadClass(component.ClassName())
	if err != nil {
		return nil, hostError(err)
	}
	a := NewArray(ElemRef, cls, n)
	a.Component = compClass
	if len(counts) == 1 {
		return a, nil
	}
	for i := 0; i < n; i++ {
		sub, err := e.allocMulti(compClass, counts[1:])
		if err != nil {
			return nil, err
		}
		if err := a.Store(i, ArrayValue(sub)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// descriptorOf returns the field descriptor naming c.
func descriptorOf(c *Class) string {
	if c.IsArray() {
		return c.Name
	}
	return "L" + c.Name + ";"
}

// className names v's class for exception messages.
func (e *Executor) className(v Value) string {
	c, err := e.host.ClassOf(v)
	if err != nil || c == nil {
		return v.Kind().String()
	}
	return strings.ReplaceAll(c.Name, "/", ".")
}
