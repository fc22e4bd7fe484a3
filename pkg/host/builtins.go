package host

import (
	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/native"
	"github.com/daimatz/jvmengine/pkg/vm"
)

// builtin describes a class of the synthetic runtime library. Its native
// methods are taken from the registry.
type builtin struct {
	super      string
	interfaces []string
	flags      uint16
	fields     []member
	abstract   []member
}

type member struct {
	flags      uint16
	name, desc string
}

const (
	objectClass    = "java/lang/Object"
	throwableClass = "java/lang/Throwable"
	final          = classfile.AccFinal
	iface          = classfile.AccInterface | classfile.AccAbstract
)

var builtins = map[string]builtin{
	objectClass:               {},
	"java/lang/Class":         {super: objectClass, flags: final},
	"java/lang/String":        {super: objectClass, flags: final, interfaces: []string{"java/lang/CharSequence", "java/lang/Comparable", "java/io/Serializable"}},
	"java/lang/StringBuilder": {super: objectClass, flags: final, interfaces: []string{"java/lang/CharSequence", "java/io/Serializable"}},
	"java/lang/Number":        {super: objectClass, flags: classfile.AccAbstract, interfaces: []string{"java/io/Serializable"}},
	"java/lang/Integer":       {super: "java/lang/Number", flags: final, interfaces: []string{"java/lang/Comparable"}},
	"java/lang/Math":          {super: objectClass, flags: final},
	"java/lang/System": {super: objectClass, flags: final, fields: []member{
		{classfile.AccPublic | classfile.AccStatic | final, "out", "Ljava/io/PrintStream;"},
		{classfile.AccPublic | classfile.AccStatic | final, "err", "Ljava/io/PrintStream;"},
	}},
	"java/io/PrintStream": {super: objectClass},
	"java/util/HashMap":   {super: objectClass, interfaces: []string{"java/util/Map", "java/lang/Cloneable", "java/io/Serializable"}},

	"java/lang/Cloneable":    {super: objectClass, flags: iface},
	"java/io/Serializable":   {super: objectClass, flags: iface},
	"java/lang/CharSequence": {super: objectClass, flags: iface, abstract: []member{{0, "length", "()I"}, {0, "toString", "()Ljava/lang/String;"}}},
	"java/lang/Comparable":   {super: objectClass, flags: iface, abstract: []member{{0, "compareTo", "(Ljava/lang/Object;)I"}}},
	"java/lang/Runnable":     {super: objectClass, flags: iface, abstract: []member{{0, "run", "()V"}}},
	"java/util/Map": {super: objectClass, flags: iface, abstract: []member{
		{0, "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;"},
		{0, "get", "(Ljava/lang/Object;)Ljava/lang/Object;"},
		{0, "getOrDefault", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;"},
		{0, "containsKey", "(Ljava/lang/Object;)Z"},
		{0, "remove", "(Ljava/lang/Object;)Ljava/lang/Object;"},
		{0, "size", "()I"},
		{0, "isEmpty", "()Z"},
		{0, "clear", "()V"},
	}},

	"java/lang/invoke/MethodHandles$Lookup":      {super: objectClass, flags: final},
	"java/lang/invoke/MethodType":                {super: objectClass, flags: final},
	"java/lang/invoke/MethodHandle":              {super: objectClass, flags: classfile.AccAbstract},
	"java/lang/invoke/CallSite":                  {super: objectClass, flags: classfile.AccAbstract},
	"java/lang/invoke/ConstantCallSite":          {super: "java/lang/invoke/CallSite"},
	"java/lang/invoke/StringConcatFactory":       {super: objectClass, flags: final},
	"java/lang/invoke/StringConcatException":     {super: "java/lang/Exception"},
	"java/lang/invoke/LambdaConversionException": {super: "java/lang/Exception"},

	throwableClass: {super: objectClass, interfaces: []string{"java/io/Serializable"}, fields: []member{
		{classfile.AccPrivate, "detailMessage", "Ljava/lang/String;"},
	}},
}

// throwables maps each built-in exception class to its superclass.
var throwables = map[string]string{
	"java/lang/Exception":                       throwableClass,
	"java/lang/Error":                           throwableClass,
	"java/lang/RuntimeException":                "java/lang/Exception",
	"java/lang/InterruptedException":            "java/lang/Exception",
	"java/lang/CloneNotSupportedException":      "java/lang/Exception",
	"java/lang/ReflectiveOperationException":    "java/lang/Exception",
	"java/lang/ClassNotFoundException":          "java/lang/ReflectiveOperationException",
	"java/lang/ArithmeticException":             "java/lang/RuntimeException",
	"java/lang/NullPointerException":            "java/lang/RuntimeException",
	"java/lang/ClassCastException":              "java/lang/RuntimeException",
	"java/lang/IndexOutOfBoundsException":       "java/lang/RuntimeException",
	"java/lang/ArrayIndexOutOfBoundsException":  "java/lang/IndexOutOfBoundsException",
	"java/lang/StringIndexOutOfBoundsException": "java/lang/IndexOutOfBoundsException",
	"java/lang/NegativeArraySizeException":      "java/lang/RuntimeException",
	"java/lang/ArrayStoreException":             "java/lang/RuntimeException",
	"java/lang/IllegalArgumentException":        "java/lang/RuntimeException",
	"java/lang/NumberFormatException":           "java/lang/IllegalArgumentException",
	"java/lang/IllegalStateException":           "java/lang/RuntimeException",
	"java/lang/IllegalMonitorStateException":    "java/lang/RuntimeException",
	"java/lang/UnsupportedOperationException":   "java/lang/RuntimeException",
	"java/lang/LinkageError":                    "java/lang/Error",
	"java/lang/IncompatibleClassChangeError":    "java/lang/LinkageError",
	"java/lang/NoSuchFieldError":                "java/lang/IncompatibleClassChangeError",
	"java/lang/NoSuchMethodError":               "java/lang/IncompatibleClassChangeError",
	"java/lang/AbstractMethodError":             "java/lang/IncompatibleClassChangeError",
	"java/lang/InstantiationError":              "java/lang/IncompatibleClassChangeError",
	"java/lang/NoClassDefFoundError":            "java/lang/LinkageError",
	"java/lang/UnsatisfiedLinkError":            "java/lang/LinkageError",
	"java/lang/ExceptionInInitializerError":     "java/lang/LinkageError",
	"java/lang/BootstrapMethodError":            "java/lang/LinkageError",
	"java/lang/ClassCircularityError":           "java/lang/LinkageError",
	"java/lang/VerifyError":                     "java/lang/LinkageError",
	"java/lang/VirtualMachineError":             "java/lang/Error",
	"java/lang/StackOverflowError":              "java/lang/VirtualMachineError",
	"java/lang/OutOfMemoryError":                "java/lang/VirtualMachineError",
	"java/lang/InternalError":                   "java/lang/VirtualMachineError",
	"java/lang/AssertionError":                  "java/lang/Error",
}

func init() {
	for name, super := range throwables {
		builtins[name] = builtin{super: super}
	}
}

// IsBuiltin reports whether name is served by the synthetic library.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// synthesize assembles the class file of a built-in class.
func (u *Universe) synthesize(name string, bi builtin) *classfile.ClassFile {
	b := classfile.NewBuilder(name, bi.super)
	b.Build().AccessFlags |= bi.flags
	for _, i := range bi.interfaces {
		b.Interface(i)
	}
	for _, f := range bi.fields {
		b.Field(f.flags, f.name, f.desc)
	}
	for _, m := range bi.abstract {
		b.Method(classfile.AccPublic|classfile.AccAbstract|m.flags, m.name, m.desc, nil)
	}
	for _, sig := range u.natives.Methods(name) {
		flags := uint16(classfile.AccPublic | classfile.AccNative)
		if sig.Static {
			flags |= classfile.AccStatic
		}
		b.Method(flags, sig.Name, sig.Descriptor, nil)
	}
	return b.Build()
}

// staticSetup assigns the static fields of built-in classes at definition.
var staticSetup = map[string]func(u *Universe, info *classInfo){
	"java/lang/System": func(u *Universe, info *classInfo) {
		info.statics[info.fields["outLjava/io/PrintStream;"]] = vm.RefValue(native.NewPrintStream(u.stdout))
		info.statics[info.fields["errLjava/io/PrintStream;"]] = vm.RefValue(native.NewPrintStream(u.stderr))
	},
}
