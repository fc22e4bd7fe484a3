package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Builder assembles a ClassFile in memory. Constant pool entries are
// deduplicated, so asking twice for the same constant yields the same index.
type Builder struct {
	cf    *ClassFile
	index map[string]uint16
}

// NewBuilder starts a class named name extending super ("" for none).
func NewBuilder(name, super string) *Builder {
	b := &Builder{
		cf: &ClassFile{
			MajorVersion: 61,
			ConstantPool: []ConstantPoolEntry{nil},
			AccessFlags:  AccPublic | AccSuper,
		},
		index: make(map[string]uint16),
	}
	b.cf.ThisClass = b.Class(name)
	if super != "" {
		b.cf.SuperClass = b.Class(super)
	}
	return b
}

func (b *Builder) add(key string, e ConstantPoolEntry) uint16 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint16(len(b.cf.ConstantPool))
	b.cf.ConstantPool = append(b.cf.ConstantPool, e)
	if e.Tag() == TagLong || e.Tag() == TagDouble {
		b.cf.ConstantPool = append(b.cf.ConstantPool, nil)
	}
	b.index[key] = idx
	return idx
}

func (b *Builder) Utf8(s string) uint16 {
	return b.add("U:"+s, &ConstantUtf8{Value: s})
}

func (b *Builder) Class(name string) uint16 {
	return b.add("C:"+name, &ConstantClass{NameIndex: b.Utf8(name)})
}

func (b *Builder) String(s string) uint16 {
	return b.add("S:"+s, &ConstantString{StringIndex: b.Utf8(s)})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.add(fmt.Sprintf("I:%d", v), &ConstantInteger{Value: v})
}

func (b *Builder) Float(v float32) uint16 {
	return b.add(fmt.Sprintf("F:%x", math.Float32bits(v)), &ConstantFloat{Value: v})
}

func (b *Builder) Long(v int64) uint16 {
	return b.add(fmt.Sprintf("J:%d", v), &ConstantLong{Value: v})
}

func (b *Builder) Double(v float64) uint16 {
	return b.add(fmt.Sprintf("D:%x", math.Float64bits(v)), &ConstantDouble{Value: v})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	return b.add("N:"+name+":"+desc, &ConstantNameAndType{NameIndex: b.Utf8(name), DescriptorIndex: b.Utf8(desc)})
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.add("FR:"+class+"."+name+":"+desc, &ConstantFieldref{ClassIndex: b.Class(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.add("MR:"+class+"."+name+":"+desc, &ConstantMethodref{ClassIndex: b.Class(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.add("IR:"+class+"."+name+":"+desc, &ConstantInterfaceMethodref{ClassIndex: b.Class(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) MethodHandle(kind uint8, ref uint16) uint16 {
	return b.add(fmt.Sprintf("MH:%d:%d", kind, ref), &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref})
}

func (b *Builder) MethodType(desc string) uint16 {
	return b.add("MT:"+desc, &ConstantMethodType{DescriptorIndex: b.Utf8(desc)})
}

// Bootstrap appends a BootstrapMethods entry and returns its index.
func (b *Builder) Bootstrap(handle uint16, args ...uint16) uint16 {
	b.cf.BootstrapMethods = append(b.cf.BootstrapMethods, BootstrapMethod{MethodRef: handle, BootstrapArguments: args})
	return uint16(len(b.cf.BootstrapMethods) - 1)
}

func (b *Builder) InvokeDynamic(bsm uint16, name, desc string) uint16 {
	return b.add(fmt.Sprintf("ID:%d:%s:%s", bsm, name, desc), &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) Dynamic(bsm uint16, name, desc string) uint16 {
	return b.add(fmt.Sprintf("DY:%d:%s:%s", bsm, name, desc), &ConstantDynamic{BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: b.NameAndType(name, desc)})
}

// Raw appends an arbitrary entry without deduplication.
func (b *Builder) Raw(e ConstantPoolEntry) uint16 {
	idx := uint16(len(b.cf.ConstantPool))
	b.cf.ConstantPool = append(b.cf.ConstantPool, e)
	return idx
}

func (b *Builder) Interface(name string) *Builder {
	b.cf.Interfaces = append(b.cf.Interfaces, b.Class(name))
	return b
}

func (b *Builder) Field(flags uint16, name, desc string) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	b.cf.Fields = append(b.cf.Fields, FieldInfo{AccessFlags: flags, Name: name, Descriptor: desc})
	return b
}

// ConstantField adds a static field initialized from the pool entry at
// value through a ConstantValue attribute.
func (b *Builder) ConstantField(flags uint16, name, desc string, value uint16) *Builder {
	b.Field(flags|AccStatic, name, desc)
	b.Utf8("ConstantValue")
	f := &b.cf.Fields[len(b.cf.Fields)-1]
	f.Attributes = append(f.Attributes, AttributeInfo{Name: "ConstantValue", Data: []byte{byte(value >> 8), byte(value)}})
	return b
}

// Method adds a method. A nil code adds an abstract or native method.
func (b *Builder) Method(flags uint16, name, desc string, code *CodeAttribute) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	if code != nil {
		b.Utf8("Code")
	}
	b.cf.Methods = append(b.cf.Methods, MethodInfo{AccessFlags: flags, Name: name, Descriptor: desc, Code: code})
	return b
}

// Build returns the assembled class file.
func (b *Builder) Build() *ClassFile {
	if len(b.cf.BootstrapMethods) > 0 {
		b.Utf8("BootstrapMethods")
	}
	return b.cf
}

// Bytes serializes the class in the .class container format.
func (b *Builder) Bytes() []byte {
	cf := b.Build()
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }

	w(uint32(classMagic))
	w(cf.MinorVersion)
	w(cf.MajorVersion)
	w(uint16(len(cf.ConstantPool)))
	for _, e := range cf.ConstantPool {
		if e == nil {
			continue
		}
		w(e.Tag())
		switch c := e.(type) {
		case *ConstantUtf8:
			w(uint16(len(c.Value)))
			buf.WriteString(c.Value)
		case *ConstantInteger:
			w(c.Value)
		case *ConstantFloat:
			w(math.Float32bits(c.Value))
		case *ConstantLong:
			w(c.Value)
		case *ConstantDouble:
			w(math.Float64bits(c.Value))
		case *ConstantClass:
			w(c.NameIndex)
		case *ConstantString:
			w(c.StringIndex)
		case *ConstantFieldref:
			w(c.ClassIndex)
			w(c.NameAndTypeIndex)
		case *ConstantMethodref:
			w(c.ClassIndex)
			w(c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			w(c.ClassIndex)
			w(c.NameAndTypeIndex)
		case *ConstantNameAndType:
			w(c.NameIndex)
			w(c.DescriptorIndex)
		case *ConstantMethodHandle:
			w(c.ReferenceKind)
			w(c.ReferenceIndex)
		case *ConstantMethodType:
			w(c.DescriptorIndex)
		case *ConstantDynamic:
			w(c.BootstrapMethodAttrIndex)
			w(c.NameAndTypeIndex)
		case *ConstantInvokeDynamic:
			w(c.BootstrapMethodAttrIndex)
			w(c.NameAndTypeIndex)
		case *ConstantModule:
			w(c.NameIndex)
		case *ConstantPackage:
			w(c.NameIndex)
		}
	}
	w(cf.AccessFlags)
	w(cf.ThisClass)
	w(cf.SuperClass)
	w(uint16(len(cf.Interfaces)))
	w(cf.Interfaces)

	w(uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		w(f.AccessFlags)
		w(b.Utf8(f.Name))
		w(b.Utf8(f.Descriptor))
		w(uint16(len(f.Attributes)))
		for _, a := range f.Attributes {
			w(b.Utf8(a.Name))
			w(uint32(len(a.Data)))
			buf.Write(a.Data)
		}
	}

	w(uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		w(m.AccessFlags)
		w(b.Utf8(m.Name))
		w(b.Utf8(m.Descriptor))
		if m.Code == nil {
			w(uint16(0))
			continue
		}
		w(uint16(1))
		w(b.Utf8("Code"))
		c := m.Code
		w(uint32(8 + len(c.Code) + 2 + 8*len(c.ExceptionHandlers) + 2))
		w(c.MaxStack)
		w(c.MaxLocals)
		w(uint32(len(c.Code)))
		buf.Write(c.Code)
		w(uint16(len(c.ExceptionHandlers)))
		for _, h := range c.ExceptionHandlers {
			w(h)
		}
		w(uint16(0))
	}

	if len(cf.BootstrapMethods) == 0 {
		w(uint16(0))
		return buf.Bytes()
	}
	w(uint16(1))
	w(b.Utf8("BootstrapMethods"))
	size := 2
	for _, bm := range cf.BootstrapMethods {
		size += 4 + 2*len(bm.BootstrapArguments)
	}
	w(uint32(size))
	w(uint16(len(cf.BootstrapMethods)))
	for _, bm := range cf.BootstrapMethods {
		w(bm.MethodRef)
		w(uint16(len(bm.BootstrapArguments)))
		w(bm.BootstrapArguments)
	}
	return buf.Bytes()
}
