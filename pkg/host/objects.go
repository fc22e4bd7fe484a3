package host

import (
	"fmt"
	"strings"
	"sync"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/native"
	"github.com/daimatz/jvmengine/pkg/vm"
)

// Object is an instance of a class whose state lives in its fields.
type Object struct {
	class  *vm.Class
	u      *Universe
	mu     sync.Mutex
	fields map[*vm.Field]vm.Value
}

func (o *Object) Class() *vm.Class { return o.class }

func (o *Object) get(f *vm.Field) vm.Value {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v, ok := o.fields[f]; ok {
		return v
	}
	return zeroValue(f.Descriptor)
}

func (o *Object) set(f *vm.Field, v vm.Value) {
	o.mu.Lock()
	o.fields[f] = v
	o.mu.Unlock()
}

// String calls toString on the object, running bytecode overrides.
func (o *Object) String() string {
	if s, ok := o.u.toString(o); ok {
		return s
	}
	return o.defaultString()
}

func (o *Object) defaultString() string {
	name := strings.ReplaceAll(o.class.Name, "/", ".")
	if o.u.isThrowable(o.class) {
		if msg, ok := o.message(); ok {
			return name + ": " + msg
		}
		return name
	}
	return fmt.Sprintf("%s@%x", name, uint32(native.IdentityHash(o)))
}

// message returns the detail message of a throwable.
func (o *Object) message() (string, bool) {
	f := o.u.messageField()
	if f == nil {
		return "", false
	}
	s, ok := o.get(f).Ref().(string)
	return s, ok
}

func zeroValue(descriptor string) vm.Value {
	switch descriptor {
	case "Z":
		return vm.BoolValue(false)
	case "B":
		return vm.ByteValue(0)
	case "C":
		return vm.CharValue(0)
	case "S":
		return vm.ShortValue(0)
	case "I":
		return vm.IntValue(0)
	case "J":
		return vm.LongValue(0)
	case "F":
		return vm.FloatValue(0)
	case "D":
		return vm.DoubleValue(0)
	}
	return vm.NullValue()
}

// initialValue is the value of a static field before <clinit> runs: its
// ConstantValue or the zero value.
func initialValue(cf *classfile.ClassFile, fi *classfile.FieldInfo) (vm.Value, error) {
	idx, ok := fi.ConstantValue()
	if !ok {
		return zeroValue(fi.Descriptor), nil
	}
	e, err := classfile.Entry(cf.ConstantPool, idx)
	if err != nil {
		return vm.Value{}, err
	}
	switch c := e.(type) {
	case *classfile.ConstantInteger:
		return vm.Coerce(vm.IntValue(c.Value), classfile.FieldType(fi.Descriptor))
	case *classfile.ConstantFloat:
		return vm.FloatValue(c.Value), nil
	case *classfile.ConstantLong:
		return vm.LongValue(c.Value), nil
	case *classfile.ConstantDouble:
		return vm.DoubleValue(c.Value), nil
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(cf.ConstantPool, c.StringIndex)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefValue(s), nil
	}
	return vm.Value{}, fmt.Errorf("unsupported ConstantValue %s", classfile.TagName(e.Tag()))
}

// ClassOf returns the runtime class of a reference.
func (u *Universe) ClassOf(v vm.Value) (*vm.Class, error) {
	if v.IsNull() {
		return nil, vm.NewFault("java/lang/NullPointerException", "class of null")
	}
	if a, ok := v.Array(); ok {
		switch {
		case a.Class != nil:
			return a.Class, nil
		case a.Elem == vm.ElemRef:
			return u.LoadClass("[Ljava/lang/Object;")
		}
		return u.LoadClass("[" + a.Elem.Descriptor())
	}
	if p, ok := v.Placeholder(); ok {
		return p.Class, nil
	}
	switch r := v.Ref().(type) {
	case *Object:
		return r.class, nil
	case *vm.Class:
		return u.LoadClass("java/lang/Class")
	case *Lookup:
		return u.LoadClass("java/lang/invoke/MethodHandles$Lookup")
	case *MethodType:
		return u.LoadClass("java/lang/invoke/MethodType")
	case *MethodHandle:
		return u.LoadClass("java/lang/invoke/MethodHandle")
	case *CallSite:
		return u.LoadClass("java/lang/invoke/ConstantCallSite")
	}
	if name, ok := native.ClassName(v.Ref()); ok {
		return u.LoadClass(name)
	}
	return nil, fmt.Errorf("no class for %T", v.Ref())
}

// IsInstanceOf reports whether v is a non-null instance of c.
func (u *Universe) IsInstanceOf(v vm.Value, c *vm.Class) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	cls, err := u.ClassOf(v)
	if err != nil {
		return false, err
	}
	return u.assignable(cls, c)
}

// assignable reports whether a value of class s can be stored where t is
// expected. Reference arrays are covariant in their component.
func (u *Universe) assignable(s, t *vm.Class) (bool, error) {
	if s.IsSubclassOf(t) {
		return true, nil
	}
	if !s.IsArray() || !t.IsArray() {
		return false, nil
	}
	sc, tc := s.Name[1:], t.Name[1:]
	if !isReferenceName(sc) || !isReferenceName(tc) {
		return false, nil
	}
	se, err := u.LoadClass(elementName(sc))
	if err != nil {
		return false, err
	}
	te, err := u.LoadClass(elementName(tc))
	if err != nil {
		return false, err
	}
	return u.assignable(se, te)
}

func isReferenceName(d string) bool { return d[0] == 'L' || d[0] == '[' }

// elementName turns a component descriptor into a class name.
func elementName(d string) string {
	if d[0] == 'L' {
		return d[1 : len(d)-1]
	}
	return d
}

func (u *Universe) isThrowable(c *vm.Class) bool {
	for ; c != nil; c = c.Super {
		if c.Name == "java/lang/Throwable" {
			return true
		}
	}
	return false
}

// AllocateUninitialized creates an instance of c with default field values.
func (u *Universe) AllocateUninitialized(c *vm.Class) (vm.Value, error) {
	if c.Flags&(classfile.AccInterface|classfile.AccAbstract) != 0 {
		return vm.Value{}, vm.NewFault("java/lang/InstantiationError", c.Name)
	}
	if err := u.initialize(c); err != nil {
		return vm.Value{}, err
	}
	if obj, ok := native.Allocate(c.Name); ok {
		return vm.RefValue(obj), nil
	}
	if info := infoOf(c); info != nil && info.synthetic && c.Name != "java/lang/Object" && !u.isThrowable(c) {
		return vm.Value{}, vm.NewFault("java/lang/UnsupportedOperationException",
			fmt.Sprintf("instances of %s cannot be created", c.Name))
	}
	return vm.RefValue(u.newObject(c)), nil
}

func (u *Universe) newObject(c *vm.Class) *Object {
	return &Object{class: c, u: u, fields: make(map[*vm.Field]vm.Value)}
}

// NewThrowable creates an exception object carrying message.
func (u *Universe) NewThrowable(className, message string) (vm.Value, error) {
	c, err := u.LoadClass(className)
	if err != nil {
		return vm.Value{}, err
	}
	if !u.isThrowable(c) {
		return vm.Value{}, fmt.Errorf("%s is not a throwable class", className)
	}
	o := u.newObject(c)
	if f := u.messageField(); f != nil && message != "" {
		o.set(f, vm.RefValue(message))
	}
	return vm.RefValue(o), nil
}

func (u *Universe) messageField() *vm.Field {
	t, err := u.LoadClass("java/lang/Throwable")
	if err != nil {
		return nil
	}
	return infoOf(t).fields["detailMessage"+"Ljava/lang/String;"]
}

// GetField reads a static field (obj ignored) or an instance field.
func (u *Universe) GetField(obj vm.Value, f *vm.Field) (vm.Value, error) {
	if f.IsStatic() {
		if err := u.initialize(f.Class); err != nil {
			return vm.Value{}, err
		}
		info := infoOf(f.Class)
		info.mu.Lock()
		defer info.mu.Unlock()
		if v, ok := info.statics[f]; ok {
			return v, nil
		}
		return zeroValue(f.Descriptor), nil
	}
	o, ok := obj.Ref().(*Object)
	if !ok {
		return vm.Value{}, fmt.Errorf("field %s.%s on %T", f.Class.Name, f.Name, obj.Ref())
	}
	return o.get(f), nil
}

func (u *Universe) SetField(obj vm.Value, f *vm.Field, v vm.Value) error {
	if f.IsStatic() {
		if err := u.initialize(f.Class); err != nil {
			return err
		}
		info := infoOf(f.Class)
		info.mu.Lock()
		info.statics[f] = v
		info.mu.Unlock()
		return nil
	}
	o, ok := obj.Ref().(*Object)
	if !ok {
		return fmt.Errorf("field %s.%s on %T", f.Class.Name, f.Name, obj.Ref())
	}
	o.set(f, v)
	return nil
}
