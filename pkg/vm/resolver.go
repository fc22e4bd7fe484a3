package vm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// Constant is a resolved constant pool entry. The set of implementations is closed.
type Constant interface {
	isConstant()
}

type (
	IntConst    int32
	FloatConst  float32
	LongConst   int64
	DoubleConst float64
	StringConst string

	ClassConst  struct{ Class *Class }
	FieldConst  struct{ Field *Field }
	MethodConst struct{ Method *Method }

	MethodTypeConst struct {
		Descriptor string
		Value      Value
	}
	MethodHandleConst struct {
		Kind   RefKind
		Method *Method
		Value  Value
	}
	DynamicCallConst struct{ Info *DynamicCallInfo }
	NameAndTypeConst struct{ Name, Descriptor string }
)

func (IntConst) isConstant()          {}
func (FloatConst) isConstant()        {}
func (LongConst) isConstant()         {}
func (DoubleConst) isConstant()       {}
func (StringConst) isConstant()       {}
func (ClassConst) isConstant()        {}
func (FieldConst) isConstant()        {}
func (MethodConst) isConstant()       {}
func (MethodTypeConst) isConstant()   {}
func (MethodHandleConst) isConstant() {}
func (DynamicCallConst) isConstant()  {}
func (NameAndTypeConst) isConstant()  {}

// DynamicCallInfo pairs a bootstrap method with the call site's name and type.
type DynamicCallInfo struct {
	Bootstrap  classfile.BootstrapMethod
	Name       string
	Descriptor string
}

// Resolver resolves constant pool indices of one class. Class, field and
// method resolutions are cached; dynamic call sites are resolved afresh on
// every request.
type Resolver struct {
	cf    *classfile.ClassFile
	class *Class
	host  ObjectModel

	mu    sync.Mutex
	cache map[uint16]Constant
}

func NewResolver(cf *classfile.ClassFile, class *Class, host ObjectModel) *Resolver {
	return &Resolver{cf: cf, class: class, host: host, cache: make(map[uint16]Constant)}
}

func (r *Resolver) fail(index uint16, tag uint8, err error) *FatalError {
	return fatalf("resolving constant #%d (%s) in %s: %w", index, classfile.TagName(tag), r.class.Name, err)
}

// Resolve maps index to exactly one Constant.
func (r *Resolver) Resolve(index uint16) (Constant, error) {
	r.mu.Lock()
	c, ok := r.cache[index]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	entry, err := classfile.Entry(r.cf.ConstantPool, index)
	if err != nil {
		return nil, fatalf("resolving constant #%d in %s: %w", index, r.class.Name, err)
	}
	c, err = r.resolve(index, entry)
	if err != nil {
		if _, ok := asFault(err); ok || isFatal(err) {
			return nil, err
		}
		return nil, r.fail(index, entry.Tag(), err)
	}

	switch c.(type) {
	case ClassConst, FieldConst, MethodConst, StringConst:
		r.mu.Lock()
		r.cache[index] = c
		r.mu.Unlock()
	}
	return c, nil
}

func (r *Resolver) resolve(index uint16, entry classfile.ConstantPoolEntry) (Constant, error) {
	pool := r.cf.ConstantPool
	switch e := entry.(type) {
	case *classfile.ConstantInteger:
		return IntConst(e.Value), nil
	case *classfile.ConstantFloat:
		return FloatConst(e.Value), nil
	case *classfile.ConstantLong:
		return LongConst(e.Value), nil
	case *classfile.ConstantDouble:
		return DoubleConst(e.Value), nil
	case *classfile.ConstantUtf8:
		return StringConst(e.Value), nil
	case *classfile.ConstantString:
		s, err := r.Resolve(e.StringIndex)
		if err != nil {
			return nil, err
		}
		str, ok := s.(StringConst)
		if !ok {
			return nil, fmt.Errorf("string refers to non-Utf8 constant #%d", e.StringIndex)
		}
		return str, nil
	case *classfile.ConstantClass:
		name, err := classfile.GetUtf8(pool, e.NameIndex)
		if err != nil {
			return nil, err
		}
		cls, err := r.loadClass(name)
		if err != nil {
			return nil, err
		}
		return ClassConst{Class: cls}, nil
	case *classfile.ConstantFieldref:
		ref, err := classfile.ResolveMemberRef(pool, index)
		if err != nil {
			return nil, err
		}
		owner, err := r.loadClass(ref.ClassName)
		if err != nil {
			return nil, err
		}
		f, err := r.host.ResolveField(owner, ref.Name, ref.Descriptor)
		if err != nil {
			return nil, err
		}
		return FieldConst{Field: f}, nil
	case *classfile.ConstantMethodref, *classfile.ConstantInterfaceMethodref:
		m, err := r.method(index)
		if err != nil {
			return nil, err
		}
		return MethodConst{Method: m}, nil
	case *classfile.ConstantNameAndType:
		name, desc, err := classfile.GetNameAndType(pool, index)
		if err != nil {
			return nil, err
		}
		return NameAndTypeConst{Name: name, Descriptor: desc}, nil
	case *classfile.ConstantMethodType:
		desc, err := classfile.GetUtf8(pool, e.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		v, err := r.host.MethodType(desc)
		if err != nil {
			return nil, err
		}
		return MethodTypeConst{Descriptor: desc, Value: v}, nil
	case *classfile.ConstantMethodHandle:
		return r.methodHandle(e)
	case *classfile.ConstantInvokeDynamic:
		if int(e.BootstrapMethodAttrIndex) >= len(r.cf.BootstrapMethods) {
			return nil, fmt.Errorf("bootstrap method %d out of range", e.BootstrapMethodAttrIndex)
		}
		name, desc, err := classfile.GetNameAndType(pool, e.NameAndTypeIndex)
		if err != nil {
			return nil, err
		}
		return DynamicCallConst{Info: &DynamicCallInfo{
			Bootstrap:  r.cf.BootstrapMethods[e.BootstrapMethodAttrIndex],
			Name:       name,
			Descriptor: desc,
		}}, nil
	}
	return nil, fmt.Errorf("unsupported constant kind")
}

// loadClass loads name, loading the element class of array names first.
func (r *Resolver) loadClass(name string) (*Class, error) {
	if strings.HasPrefix(name, "[") {
		elem := strings.TrimLeft(name, "[")
		if strings.HasPrefix(elem, "L") && strings.HasSuffix(elem, ";") {
			if _, err := r.host.LoadClass(elem[1 : len(elem)-1]); err != nil {
				return nil, err
			}
		} else if _, err := classfile.ParseFieldType(elem); err != nil || len(elem) != 1 {
			return nil, fmt.Errorf("malformed array class name %q", name)
		}
	}
	return r.host.LoadClass(name)
}

func (r *Resolver) method(index uint16) (*Method, error) {
	ref, err := classfile.ResolveMemberRef(r.cf.ConstantPool, index)
	if err != nil {
		return nil, err
	}
	owner, err := r.loadClass(ref.ClassName)
	if err != nil {
		return nil, err
	}
	return r.host.ResolveMethod(owner, ref.Name, ref.Descriptor)
}

func (r *Resolver) methodHandle(e *classfile.ConstantMethodHandle) (Constant, error) {
	kind := RefKind(e.ReferenceKind)
	switch kind {
	case RefInvokeStatic, RefInvokeVirtual, RefInvokeInterface, RefInvokeSpecial, RefNewInvokeSpecial:
	default:
		return nil, fmt.Errorf("method handle reference kind %d is not supported", kind)
	}
	m, err := r.method(e.ReferenceIndex)
	if err != nil {
		return nil, err
	}
	v, err := r.host.CreateCallableHandle(kind, m)
	if err != nil {
		return nil, err
	}
	return MethodHandleConst{Kind: kind, Method: m, Value: v}, nil
}

func (r *Resolver) ResolveClass(index uint16) (*Class, error) {
	c, err := r.Resolve(index)
	if err != nil {
		return nil, err
	}
	cc, ok := c.(ClassConst)
	if !ok {
		return nil, fatalf("constant #%d is %T, expected a class", index, c)
	}
	return cc.Class, nil
}

func (r *Resolver) ResolveField(index uint16) (*Field, error) {
	c, err := r.Resolve(index)
	if err != nil {
		return nil, err
	}
	fc, ok := c.(FieldConst)
	if !ok {
		return nil, fatalf("constant #%d is %T, expected a field", index, c)
	}
	return fc.Field, nil
}

func (r *Resolver) ResolveMethod(index uint16) (*Method, error) {
	c, err := r.Resolve(index)
	if err != nil {
		return nil, err
	}
	mc, ok := c.(MethodConst)
	if !ok {
		return nil, fatalf("constant #%d is %T, expected a method", index, c)
	}
	return mc.Method, nil
}

func (r *Resolver) ResolveDynamicCall(index uint16) (*DynamicCallInfo, error) {
	c, err := r.Resolve(index)
	if err != nil {
		return nil, err
	}
	dc, ok := c.(DynamicCallConst)
	if !ok {
		return nil, fatalf("constant #%d is %T, expected a dynamic call site", index, c)
	}
	return dc.Info, nil
}

// HostValue converts a loadable constant into the value pushed by ldc or
// passed as a static bootstrap argument.
func HostValue(c Constant) (Value, error) {
	switch c := c.(type) {
	case IntConst:
		return IntValue(int32(c)), nil
	case FloatConst:
		return FloatValue(float32(c)), nil
	case LongConst:
		return LongValue(int64(c)), nil
	case DoubleConst:
		return DoubleValue(float64(c)), nil
	case StringConst:
		return RefValue(string(c)), nil
	case ClassConst:
		return RefValue(c.Class), nil
	case MethodTypeConst:
		return c.Value, nil
	case MethodHandleConst:
		return c.Value, nil
	}
	return Value{}, fatalf("constant %T is not loadable", c)
}
