package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile parses the .class file at path.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data)
}

// Parse reads a whole class file from r.
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading class file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	d := &decoder{buf: data}
	if magic := d.u4("magic number"); d.err == nil && magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}
	cf := &ClassFile{
		MinorVersion: d.u2("minor version"),
		MajorVersion: d.u2("major version"),
	}
	if d.err != nil {
		return nil, d.err
	}
	var err error
	if cf.ConstantPool, err = d.constantPool(); err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.AccessFlags = d.u2("access flags")
	cf.ThisClass = d.u2("this_class")
	cf.SuperClass = d.u2("super_class")
	cf.Interfaces = d.u2s(int(d.u2("interfaces count")), "interfaces")
	if d.err != nil {
		return nil, d.err
	}

	cf.Fields = make([]FieldInfo, d.u2("fields count"))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if err := d.member(cf.ConstantPool, &f.AccessFlags, &f.Name, &f.Descriptor, &f.Attributes); err != nil {
			return nil, fmt.Errorf("parsing field %d: %w", i, err)
		}
	}

	cf.Methods = make([]MethodInfo, d.u2("methods count"))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if err := d.member(cf.ConstantPool, &m.AccessFlags, &m.Name, &m.Descriptor, &m.Attributes); err != nil {
			return nil, fmt.Errorf("parsing method %d: %w", i, err)
		}
		if a := findAttribute(m.Attributes, "Code"); a != nil {
			if m.Code, err = parseCode(a.Data); err != nil {
				return nil, fmt.Errorf("parsing Code attribute for method %s: %w", m.Name, err)
			}
		}
	}

	attrs, err := d.attributes(cf.ConstantPool)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}
	if a := findAttribute(attrs, "BootstrapMethods"); a != nil {
		if cf.BootstrapMethods, err = parseBootstrapMethods(a.Data); err != nil {
			return nil, fmt.Errorf("parsing BootstrapMethods: %w", err)
		}
	}
	return cf, nil
}

// decoder reads big-endian values from a class file image. The first read
// past the end records err; every later read yields zero.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("reading %s at offset %d: %w", what, d.off, io.ErrUnexpectedEOF)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u1(what string) uint8 {
	if b := d.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u2(what string) uint16 {
	if b := d.take(2, what); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u4(what string) uint32 {
	if b := d.take(4, what); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u8(what string) uint64 {
	if b := d.take(8, what); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) u2s(n int, what string) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = d.u2(what)
	}
	return out
}

// member reads the shared layout of field_info and method_info.
func (d *decoder) member(pool []ConstantPoolEntry, flags *uint16, name, desc *string, attrs *[]AttributeInfo) error {
	*flags = d.u2("access flags")
	nameIndex, descIndex := d.u2("name index"), d.u2("descriptor index")
	if d.err != nil {
		return d.err
	}
	var err error
	if *name, err = GetUtf8(pool, nameIndex); err != nil {
		return fmt.Errorf("resolving name: %w", err)
	}
	if *desc, err = GetUtf8(pool, descIndex); err != nil {
		return fmt.Errorf("resolving descriptor: %w", err)
	}
	if *attrs, err = d.attributes(pool); err != nil {
		return fmt.Errorf("parsing attributes of %s: %w", *name, err)
	}
	return nil
}

func (d *decoder) attributes(pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, d.u2("attributes count"))
	for i := range attrs {
		nameIndex := d.u2("attribute name index")
		data := d.take(int(d.u4("attribute length")), "attribute data")
		if d.err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, d.err)
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		attrs[i] = AttributeInfo{Name: name, Data: append([]byte(nil), data...)}
	}
	return attrs, nil
}

// constantPool reads the pool. The returned slice is indexed like the
// pool itself: index 0 and the slot after each long or double are nil.
func (d *decoder) constantPool() ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, d.u2("constant pool count"))
	for i := 1; i < len(pool); i++ {
		tag := d.u1("tag")
		var e ConstantPoolEntry
		switch tag {
		case TagUtf8:
			e = &ConstantUtf8{Value: decodeModifiedUTF8(d.take(int(d.u2("Utf8 length")), "Utf8 bytes"))}
		case TagInteger:
			e = &ConstantInteger{Value: int32(d.u4("Integer"))}
		case TagFloat:
			e = &ConstantFloat{Value: math.Float32frombits(d.u4("Float"))}
		case TagLong:
			e = &ConstantLong{Value: int64(d.u8("Long"))}
		case TagDouble:
			e = &ConstantDouble{Value: math.Float64frombits(d.u8("Double"))}
		case TagClass:
			e = &ConstantClass{NameIndex: d.u2("Class")}
		case TagString:
			e = &ConstantString{StringIndex: d.u2("String")}
		case TagFieldref:
			e = &ConstantFieldref{ClassIndex: d.u2("Fieldref"), NameAndTypeIndex: d.u2("Fieldref")}
		case TagMethodref:
			e = &ConstantMethodref{ClassIndex: d.u2("Methodref"), NameAndTypeIndex: d.u2("Methodref")}
		case TagInterfaceMethodref:
			e = &ConstantInterfaceMethodref{ClassIndex: d.u2("InterfaceMethodref"), NameAndTypeIndex: d.u2("InterfaceMethodref")}
		case TagNameAndType:
			e = &ConstantNameAndType{NameIndex: d.u2("NameAndType"), DescriptorIndex: d.u2("NameAndType")}
		case TagMethodHandle:
			e = &ConstantMethodHandle{ReferenceKind: d.u1("MethodHandle kind"), ReferenceIndex: d.u2("MethodHandle reference")}
		case TagMethodType:
			e = &ConstantMethodType{DescriptorIndex: d.u2("MethodType")}
		case TagDynamic:
			e = &ConstantDynamic{BootstrapMethodAttrIndex: d.u2("Dynamic"), NameAndTypeIndex: d.u2("Dynamic")}
		case TagInvokeDynamic:
			e = &ConstantInvokeDynamic{BootstrapMethodAttrIndex: d.u2("InvokeDynamic"), NameAndTypeIndex: d.u2("InvokeDynamic")}
		case TagModule:
			e = &ConstantModule{NameIndex: d.u2("Module")}
		case TagPackage:
			e = &ConstantPackage{NameIndex: d.u2("Package")}
		default:
			if d.err == nil {
				return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
			}
		}
		if d.err != nil {
			return nil, fmt.Errorf("index %d: %w", i, d.err)
		}
		pool[i] = e
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return pool, nil
}

func findAttribute(attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

func parseCode(data []byte) (*CodeAttribute, error) {
	d := &decoder{buf: data}
	c := &CodeAttribute{MaxStack: d.u2("max_stack"), MaxLocals: d.u2("max_locals")}
	c.Code = append([]byte(nil), d.take(int(d.u4("code_length")), "code")...)
	if d.err != nil {
		return nil, d.err
	}
	// Hand-built attributes may stop right after the code.
	if d.off == len(data) {
		return c, nil
	}
	if n := d.u2("exception table length"); n > 0 {
		c.ExceptionHandlers = make([]ExceptionHandler, n)
		for i := range c.ExceptionHandlers {
			c.ExceptionHandlers[i] = ExceptionHandler{
				StartPC:   d.u2("start_pc"),
				EndPC:     d.u2("end_pc"),
				HandlerPC: d.u2("handler_pc"),
				CatchType: d.u2("catch_type"),
			}
		}
	}
	if d.err != nil {
		return nil, fmt.Errorf("exception table: %w", d.err)
	}
	return c, nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	d := &decoder{buf: data}
	methods := make([]BootstrapMethod, d.u2("bootstrap method count"))
	for i := range methods {
		ref := d.u2("bootstrap method ref")
		methods[i] = BootstrapMethod{MethodRef: ref, BootstrapArguments: d.u2s(int(d.u2("argument count")), "bootstrap argument")}
		if d.err != nil {
			return nil, fmt.Errorf("method %d: %w", i, d.err)
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return methods, nil
}

// ClassName returns the internal name of the class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i, m := range cf.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name and descriptor.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i, f := range cf.Fields {
		if f.Name == name && f.Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}
