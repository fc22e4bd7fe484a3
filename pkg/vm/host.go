package vm

import (
	"github.com/daimatz/jvmengine/pkg/classfile"
)

// Class is the engine's view of a loaded class. Data is private to the host.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
	Flags      uint16
	Data       any
}

func (c *Class) IsInterface() bool { return c.Flags&classfile.AccInterface != 0 }

func (c *Class) IsArray() bool { return len(c.Name) > 0 && c.Name[0] == '[' }

// IsSubclassOf reports whether c is other or inherits from it through
// superclasses or interfaces.
func (c *Class) IsSubclassOf(other *Class) bool {
	if c == nil || other == nil {
		return false
	}
	if c == other || c.Name == other.Name {
		return true
	}
	for _, i := range c.Interfaces {
		if i.IsSubclassOf(other) {
			return true
		}
	}
	return c.Super.IsSubclassOf(other)
}

func (c *Class) String() string { return c.Name }

// Field is a resolved field.
type Field struct {
	Class      *Class
	Name       string
	Descriptor string
	Flags      uint16
}

func (f *Field) IsStatic() bool { return f.Flags&classfile.AccStatic != 0 }

func (f *Field) Type() classfile.FieldType { return classfile.FieldType(f.Descriptor) }

// Method is a resolved method or constructor.
type Method struct {
	Class      *Class
	Name       string
	Descriptor string
	Flags      uint16
}

func (m *Method) IsStatic() bool       { return m.Flags&classfile.AccStatic != 0 }
func (m *Method) IsNative() bool       { return m.Flags&classfile.AccNative != 0 }
func (m *Method) IsAbstract() bool     { return m.Flags&classfile.AccAbstract != 0 }
func (m *Method) IsSynchronized() bool { return m.Flags&classfile.AccSynchronized != 0 }
func (m *Method) IsConstructor() bool  { return m.Name == "<init>" }

func (m *Method) Signature() (*classfile.MethodDescriptor, error) {
	return classfile.ParseMethodDescriptor(m.Descriptor)
}

func (m *Method) String() string {
	return m.Class.Name + "." + m.Name + m.Descriptor
}

// RefKind is a method handle reference kind.
type RefKind uint8

const (
	RefGetField         RefKind = classfile.RefGetField
	RefGetStatic        RefKind = classfile.RefGetStatic
	RefPutField         RefKind = classfile.RefPutField
	RefPutStatic        RefKind = classfile.RefPutStatic
	RefInvokeVirtual    RefKind = classfile.RefInvokeVirtual
	RefInvokeStatic     RefKind = classfile.RefInvokeStatic
	RefInvokeSpecial    RefKind = classfile.RefInvokeSpecial
	RefNewInvokeSpecial RefKind = classfile.RefNewInvokeSpecial
	RefInvokeInterface  RefKind = classfile.RefInvokeInterface
)

// ClassProvider hands out parsed class files. ok is false when the class's
// bytecode cannot be located, which forces calls into it to be delegated.
type ClassProvider interface {
	ClassFile(c *Class) (cf *classfile.ClassFile, ok bool)
}

// ObjectModel is the live object universe the engine runs against.
// Values crossing this boundary are in whole form: longs and doubles are
// single KindLong and KindDouble values.
type ObjectModel interface {
	LoadClass(name string) (*Class, error)
	ClassOf(v Value) (*Class, error)
	ResolveField(c *Class, name, descriptor string) (*Field, error)
	ResolveMethod(c *Class, name, descriptor string) (*Method, error)

	// GetField and SetField take a null object for static fields.
	GetField(obj Value, f *Field) (Value, error)
	SetField(obj Value, f *Field, v Value) error

	// Invoke runs m directly. receiver is null for static methods.
	Invoke(receiver Value, m *Method, args []Value) (Value, error)
	AllocateUninitialized(c *Class) (Value, error)
	IsInstanceOf(v Value, c *Class) (bool, error)
	NewThrowable(className, message string) (Value, error)

	NewLookup(caller *Class) (Value, error)
	MethodType(descriptor string) (Value, error)
	CreateCallableHandle(kind RefKind, m *Method) (Value, error)
	InvokeHandle(handle Value, args []Value) (Value, error)
	DynamicInvoker(callSite Value) (Value, error)
}
