package classfile

import (
	"fmt"
	"strings"
)

// FieldType is one parsed field descriptor such as "I", "J" or "[Ljava/lang/String;".
type FieldType string

// Wide reports whether the type occupies two slots (long or double).
func (t FieldType) Wide() bool { return t == "J" || t == "D" }

// Slots is the number of operand stack slots a value of this type takes.
func (t FieldType) Slots() int {
	if t.Wide() {
		return 2
	}
	return 1
}

func (t FieldType) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

func (t FieldType) IsVoid() bool { return t == "V" }

// ClassName returns the internal class name for reference types:
// "java/lang/String" for "Ljava/lang/String;" and the descriptor itself for arrays.
func (t FieldType) ClassName() string {
	if len(t) > 1 && t[0] == 'L' {
		return string(t[1 : len(t)-1])
	}
	return string(t)
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []FieldType
	Return FieldType
}

// ParamSlots is the number of local variable slots the parameters occupy.
func (d *MethodDescriptor) ParamSlots() int {
	n := 0
	for _, p := range d.Params {
		n += p.Slots()
	}
	return n
}

// ParseMethodDescriptor parses "(IJLjava/lang/String;)V" style descriptors.
func ParseMethodDescriptor(descriptor string) (*MethodDescriptor, error) {
	if !strings.HasPrefix(descriptor, "(") {
		return nil, fmt.Errorf("invalid method descriptor: %s", descriptor)
	}
	end := strings.IndexByte(descriptor, ')')
	if end < 0 {
		return nil, fmt.Errorf("invalid method descriptor: %s", descriptor)
	}

	d := &MethodDescriptor{}
	params := descriptor[1:end]
	for len(params) > 0 {
		t, rest, err := nextFieldType(params)
		if err != nil {
			return nil, fmt.Errorf("%w in %s", err, descriptor)
		}
		d.Params = append(d.Params, t)
		params = rest
	}

	ret := descriptor[end+1:]
	if ret == "V" {
		d.Return = "V"
		return d, nil
	}
	t, rest, err := nextFieldType(ret)
	if err != nil || rest != "" {
		return nil, fmt.Errorf("invalid return type in %s", descriptor)
	}
	d.Return = t
	return d, nil
}

// ParseFieldType validates a single field descriptor.
func ParseFieldType(descriptor string) (FieldType, error) {
	t, rest, err := nextFieldType(descriptor)
	if err != nil {
		return "", err
	}
	if rest != "" {
		return "", fmt.Errorf("trailing data in field descriptor %s", descriptor)
	}
	return t, nil
}

func nextFieldType(s string) (FieldType, string, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return "", "", fmt.Errorf("truncated type descriptor")
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return FieldType(s[:i+1]), s[i+1:], nil
	case 'L':
		semi := strings.IndexByte(s[i:], ';')
		if semi < 0 {
			return "", "", fmt.Errorf("unterminated class type")
		}
		return FieldType(s[:i+semi+1]), s[i+semi+1:], nil
	default:
		return "", "", fmt.Errorf("invalid type descriptor char '%c'", s[i])
	}
}
