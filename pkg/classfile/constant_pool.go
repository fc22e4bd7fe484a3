package classfile

import "fmt"

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// TagName returns the JVMS name of a constant pool tag.
func TagName(tag uint8) string {
	switch tag {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagDynamic:
		return "Dynamic"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	case TagModule:
		return "Module"
	case TagPackage:
		return "Package"
	}
	return fmt.Sprintf("tag(%d)", tag)
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8 (encoded NUL and
// surrogate pairs written as two 3-byte sequences).
func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16Decode(units))
}

func utf16Decode(units []uint16) []rune {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] < 0xE000 {
			out = append(out, (rune(u)-0xD800)<<10|(rune(units[i+1])-0xDC00)+0x10000)
			i++
			continue
		}
		out = append(out, rune(u))
	}
	return out
}

// Entry returns the pool entry at index or an error if it is out of range or unused.
func Entry(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return pool[index], nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, entry.Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	entry, err := Entry(pool, classIndex)
	if err != nil {
		return "", err
	}
	class, ok := entry.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// GetNameAndType returns the name and descriptor of a CONSTANT_NameAndType entry.
func GetNameAndType(pool []ConstantPoolEntry, index uint16) (name, descriptor string, err error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return "", "", err
	}
	nat, ok := entry.(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", index)
	}
	if name, err = GetUtf8(pool, nat.NameIndex); err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	if descriptor, err = GetUtf8(pool, nat.DescriptorIndex); err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, descriptor, nil
}

// MemberRef holds a resolved Fieldref, Methodref or InterfaceMethodref.
type MemberRef struct {
	Tag        uint8
	ClassName  string
	Name       string
	Descriptor string
}

// ResolveMemberRef resolves any of the three member reference kinds.
func ResolveMemberRef(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return nil, err
	}
	var classIndex, natIndex uint16
	switch ref := entry.(type) {
	case *ConstantFieldref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	case *ConstantMethodref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIndex, natIndex = ref.ClassIndex, ref.NameAndTypeIndex
	default:
		return nil, fmt.Errorf("constant pool index %d is not a member reference (tag=%d)", index, entry.Tag())
	}

	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving %s class: %w", TagName(entry.Tag()), err)
	}
	name, desc, err := GetNameAndType(pool, natIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", TagName(entry.Tag()), err)
	}
	return &MemberRef{Tag: entry.Tag(), ClassName: className, Name: name, Descriptor: desc}, nil
}
